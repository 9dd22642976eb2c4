package importer

import (
	"encoding/json"
	"strings"

	"github.com/moreskylab/Sentio/recordstore"
	"gopkg.in/yaml.v3"
)

// articleFile holds articles under an "articles" key.
type articleFile struct {
	Articles []recordstore.Article `json:"articles" yaml:"articles"`
}

func decodeYAML(_ string, data []byte) ([]recordstore.Article, error) {
	return decodeStructured(data, yaml.Unmarshal)
}

func decodeJSON(_ string, data []byte) ([]recordstore.Article, error) {
	return decodeStructured(data, json.Unmarshal)
}

// decodeStructured accepts a bare list or an object with an articles key.
func decodeStructured(data []byte, unmarshal func([]byte, any) error) ([]recordstore.Article, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "-") {
		var list []recordstore.Article
		if err := unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var file articleFile
	if err := unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Articles, nil
}
