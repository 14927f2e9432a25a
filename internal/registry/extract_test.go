package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

const detailPage = `<html><body>
<form id="frmConsulta">
  <input id="txtNumIPTU" value="12345678901"/>
  <input id="txtProprietarioNome" value="MARIA DA SILVA"/>
  <input id="txtCompromissarioNome" value="JOSE SANTOS"/>
  <input id="txtEndereco" value="RUA DAS FLORES"/>
  <input id="txtNumero" value="123"/>
  <input id="txtComplemento" value="APTO 45"/>
  <input id="txtBairro" value="CENTRO"/>
  <input id="txtCepImovel" value="01001-000"/>
</form>
</body></html>`

const noDataPage = `<html><body>
<span id="lblMensagem">Não foi possível localizar o imóvel informado.</span>
</body></html>`

const blockPage = `<html><body><h1>Access denied</h1></body></html>`

const resultsPage = `<html><body>
<table id="grdResultado">
  <tr><th>Cadastro</th><th>Logradouro</th><th>Número</th><th>Bairro</th></tr>
  <tr><td>11122233344</td><td>RUA A</td><td>10</td><td>CENTRO</td></tr>
  <tr><td>55566677788</td><td>RUA A</td><td>12</td><td>CENTRO</td></tr>
</table>
<a id="lnkProxima" href="#">Próxima</a>
</body></html>`

const lastResultsPage = `<html><body>
<table id="grdResultado">
  <tr><td>99988877766</td><td>RUA B</td><td>7</td><td>SUL</td></tr>
</table>
</body></html>`

func TestExtractRecordFullDetail(t *testing.T) {
	rec, err := ExtractRecord(detailPage)
	require.NoError(t, err)
	assert.Equal(t, scraper.Record{
		CadastralNumber: "12345678901",
		OwnerName:       "MARIA DA SILVA",
		BuyerName:       "JOSE SANTOS",
		Street:          "RUA DAS FLORES",
		Number:          "123",
		Complement:      "APTO 45",
		District:        "CENTRO",
		PostalCode:      "01001-000",
	}, rec)
}

func TestExtractRecordNoData(t *testing.T) {
	_, err := ExtractRecord(noDataPage)
	assert.ErrorIs(t, err, scraper.ErrNoData)
}

func TestExtractRecordMalformed(t *testing.T) {
	_, err := ExtractRecord(blockPage)
	assert.ErrorIs(t, err, scraper.ErrMalformedPage)
}

func TestExtractRecordEmptyCadastralIsNoData(t *testing.T) {
	page := `<html><body><form><input id="txtNumIPTU" value=""/></form></body></html>`
	_, err := ExtractRecord(page)
	assert.ErrorIs(t, err, scraper.ErrNoData)
}

func TestExtractRowsParsesTable(t *testing.T) {
	rows, err := ExtractRows(resultsPage)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, AddressRow{
		CadastralNumber: "11122233344",
		Street:          "RUA A",
		Number:          "10",
		District:        "CENTRO",
	}, rows[0])
	assert.Equal(t, "55566677788", rows[1].CadastralNumber)
}

func TestExtractRowsSkipsHeaderRow(t *testing.T) {
	rows, err := ExtractRows(resultsPage)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEqual(t, "Cadastro", row.CadastralNumber)
	}
}

func TestExtractRowsMissingTableIsMalformed(t *testing.T) {
	_, err := ExtractRows(blockPage)
	assert.ErrorIs(t, err, scraper.ErrMalformedPage)
}

func TestExtractRowsNoData(t *testing.T) {
	_, err := ExtractRows(noDataPage)
	assert.ErrorIs(t, err, scraper.ErrNoData)
}

func TestHasNextPage(t *testing.T) {
	assert.True(t, HasNextPage(resultsPage))
	assert.False(t, HasNextPage(lastResultsPage))
	assert.False(t, HasNextPage(`<a id="lnkProxima" disabled href="#">Próxima</a>`))
}
