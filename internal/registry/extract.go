package registry

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// Detail-page form fields holding the extracted record values.
const (
	fieldCadastral  = "txtNumIPTU"
	fieldOwner      = "txtProprietarioNome"
	fieldBuyer      = "txtCompromissarioNome"
	fieldStreet     = "txtEndereco"
	fieldNumber     = "txtNumero"
	fieldComplement = "txtComplemento"
	fieldDistrict   = "txtBairro"
	fieldPostalCode = "txtCepImovel"
)

// Markers the portal uses to signal "no record" without an error status.
var noDataMarkers = []string{
	"não foi possível localizar",
	"nenhum registro encontrado",
	"nenhum resultado",
}

// ExtractRecord parses a detail page into a typed record. A page missing
// the cadastral field entirely is malformed, usually a sign the portal is
// serving a block page; a page carrying a recognized zero-results marker is
// a valid empty outcome.
func ExtractRecord(content string) (scraper.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return scraper.Record{}, fmt.Errorf("parse page: %w", err)
	}

	if hasNoDataMarker(doc) {
		return scraper.Record{}, scraper.ErrNoData
	}
	if doc.Find("#" + fieldCadastral).Length() == 0 {
		return scraper.Record{}, fmt.Errorf("%w: cadastral field missing", scraper.ErrMalformedPage)
	}

	rec := scraper.Record{
		CadastralNumber: inputValue(doc, fieldCadastral),
		OwnerName:       inputValue(doc, fieldOwner),
		BuyerName:       inputValue(doc, fieldBuyer),
		Street:          inputValue(doc, fieldStreet),
		Number:          inputValue(doc, fieldNumber),
		Complement:      inputValue(doc, fieldComplement),
		District:        inputValue(doc, fieldDistrict),
		PostalCode:      inputValue(doc, fieldPostalCode),
	}
	if rec.CadastralNumber == "" {
		return scraper.Record{}, scraper.ErrNoData
	}
	return rec, nil
}

// AddressRow is one hit in a paginated address-search result table.
type AddressRow struct {
	CadastralNumber string
	Street          string
	Number          string
	District        string
}

// ExtractRows parses one page of address-search results. An empty slice
// with a nil error means the page held a results table with no rows left,
// which ends pagination.
func ExtractRows(content string) ([]AddressRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	if hasNoDataMarker(doc) {
		return nil, scraper.ErrNoData
	}
	table := doc.Find("table#grdResultado")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: results table missing", scraper.ErrMalformedPage)
	}

	var rows []AddressRow
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 4 {
			return
		}
		rows = append(rows, AddressRow{
			CadastralNumber: cellText(cells, 0),
			Street:          cellText(cells, 1),
			Number:          cellText(cells, 2),
			District:        cellText(cells, 3),
		})
	})
	return rows, nil
}

// HasNextPage reports whether the pagination control offers another page.
func HasNextPage(content string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return false
	}
	next := doc.Find("a#lnkProxima")
	if next.Length() == 0 {
		return false
	}
	_, disabled := next.Attr("disabled")
	return !disabled
}

func inputValue(doc *goquery.Document, id string) string {
	val, _ := doc.Find("#" + id).Attr("value")
	return strings.TrimSpace(val)
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

func hasNoDataMarker(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, marker := range noDataMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
