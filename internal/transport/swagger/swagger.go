// Package swagger serves the OpenAPI document and the Swagger UI pointing at it.
package swagger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
)

const specRoute = "/openapi.yml"

type Handler struct {
	doc  *openapi3.T
	path string
}

// Load parses and validates the document at path so that a broken file fails at
// startup instead of in the browser.
func Load(ctx context.Context, path string) (*Handler, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &Handler{doc: doc, path: path}, nil
}

// Operations counts the documented operations.
func (h *Handler) Operations() int {
	n := 0
	for _, item := range h.doc.Paths.Map() {
		n += len(item.Operations())
	}
	return n
}

func (h *Handler) Version() string {
	return h.doc.Info.Version
}

func (h *Handler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	http.ServeFile(w, r, h.path)
}

func (h *Handler) UI() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL(specRoute))
}
