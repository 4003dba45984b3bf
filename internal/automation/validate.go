package automation

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidateDocument rejects downloads that are not what their type claims,
// such as an HTML error page served instead of the file.
func ValidateDocument(docType models.DocumentType, data []byte) error {
	switch docType {
	case models.DocumentPDF:
		return validatePDF(data)
	case models.DocumentXML:
		return validateXML(data)
	default:
		return fmt.Errorf("unknown document type %q", docType)
	}
}

func validatePDF(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return errors.New("printable document is not a PDF")
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), cfg); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	return nil
}

func validateXML(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Vouchers declare their own encoding, usually UTF-8.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var root string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("invalid XML: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok && root == "" {
			root = start.Name.Local
			if root == "html" {
				return errors.New("machine-readable document is an HTML page")
			}
		}
	}
	if root == "" {
		return errors.New("XML document has no root element")
	}
	return nil
}
