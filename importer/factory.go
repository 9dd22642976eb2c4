// Package importer decodes article files for bulk seeding: YAML, JSON,
// spreadsheets with a title column, and PDF documents.
package importer

import (
	"path"
	"strings"

	"github.com/moreskylab/Sentio/recordstore"
)

// Decoder turns file content into articles. name is used for the file
// extension and as a fallback title.
type Decoder interface {
	Decode(name string, data []byte) ([]recordstore.Article, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(name string, data []byte) ([]recordstore.Article, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(name string, data []byte) ([]recordstore.Article, error) {
	return f(name, data)
}

// Factory picks a decoder by file extension.
type Factory struct {
	fallback  Decoder
	extension map[string]Decoder
}

// NewFactory registers the built-in decoders; unknown extensions are read as YAML.
func NewFactory() *Factory {
	f := &Factory{fallback: DecoderFunc(decodeYAML), extension: make(map[string]Decoder)}
	f.Register(".yaml", DecoderFunc(decodeYAML))
	f.Register(".yml", DecoderFunc(decodeYAML))
	f.Register(".json", DecoderFunc(decodeJSON))
	f.Register(".xlsx", DecoderFunc(decodeExcel))
	f.Register(".xlsm", DecoderFunc(decodeExcel))
	f.Register(".xls", DecoderFunc(decodeXLS))
	f.Register(".pdf", DecoderFunc(decodePDF))
	return f
}

// Register sets the decoder for ext, including the leading dot.
func (f *Factory) Register(ext string, decoder Decoder) {
	f.extension[strings.ToLower(ext)] = decoder
}

// Decoder returns the decoder for name.
func (f *Factory) Decoder(name string) Decoder {
	if decoder, ok := f.extension[strings.ToLower(path.Ext(name))]; ok {
		return decoder
	}
	return f.fallback
}

// Decode decodes data with the decoder registered for name.
func (f *Factory) Decode(name string, data []byte) ([]recordstore.Article, error) {
	return f.Decoder(name).Decode(name, data)
}

var defaultFactory = NewFactory()

// Decode decodes data with the built-in decoders.
func Decode(name string, data []byte) ([]recordstore.Article, error) {
	return defaultFactory.Decode(name, data)
}
