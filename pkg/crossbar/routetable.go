package crossbar

import (
	"io"
	"os"

	"github.com/toyz/crossbar/internal/report"
)

// printRouteTable dumps the finalized route table to stderr at startup when
// Debug is enabled
func (s *Server) printRouteTable(storage *MetadataStorage) {
	WriteRouteTable(os.Stderr, storage)
}

// WriteRouteTable renders the finalized route table of a storage to w
func WriteRouteTable(w io.Writer, storage *MetadataStorage) {
	var rows []report.Row
	for _, decl := range storage.Controllers() {
		if decl.DefaultHandler != nil {
			rows = append(rows, report.Row{
				Method:      "ANY",
				Path:        decl.BasePath + "/*",
				Controller:  decl.Name,
				Handler:     "default",
				Middlewares: len(decl.DefaultHandlerMiddlewares),
				Security:    decl.SecuritySchemes,
			})
			continue
		}
		for _, route := range decl.Routes {
			rows = append(rows, report.Row{
				Method:      route.HTTPMethod,
				Path:        decl.BasePath + route.Path,
				Controller:  decl.Name,
				Handler:     route.MethodName,
				Middlewares: len(route.Middlewares),
				Security:    route.SecuritySchemes,
				Stream:      route.StreamKind.String(),
			})
		}
	}
	report.PrintRouteTable(w, rows)
}
