// Package assetsrv serves volume containers and colour maps over HTTP so a
// viewer can load them by URL.
package assetsrv

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/codec"
	"github.com/labstack/echo/v5"
)

// Server exposes files below Root.
//
//	GET /assets/*                    raw file
//	GET /volumes/:kind/metadata      container header of the kind's asset
type Server struct {
	Root   string
	logger soilvol.Logger
}

func NewServer(root string, logger soilvol.Logger) *Server {
	return &Server{Root: root, logger: soilvol.OrNop(logger)}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/assets/*", s.handleAsset)
	e.GET("/volumes/:kind/metadata", s.handleMetadata)
}

// resolve maps a request path onto Root without escaping it.
func (s *Server) resolve(name string) string {
	clean := filepath.Clean("/" + strings.TrimLeft(name, "/"))
	return filepath.Join(s.Root, filepath.FromSlash(clean))
}

func (s *Server) handleAsset(c *echo.Context) error {
	path := s.resolve(c.Param("*"))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return writeError(c, http.StatusNotFound, "asset not found")
	}
	s.logger.Debugf("serving %s (%d bytes)", path, info.Size())
	http.ServeFile(c.Response(), c.Request(), path)
	return nil
}

type metadataResponse struct {
	Kind    soilvol.VolumeKind `json:"kind"`
	Asset   string             `json:"asset"`
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Depth   int                `json:"depth"`
	Samples int                `json:"samples"`
	Bytes   int64              `json:"bytes"`
	Extra   map[string]any     `json:"extra,omitempty"`
}

func (s *Server) handleMetadata(c *echo.Context) error {
	kind, err := soilvol.ParseVolumeKind(c.Param("kind"))
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	path := s.resolve(kind.AssetName())
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return writeError(c, http.StatusNotFound, "asset not found")
	}
	if err != nil {
		s.logger.Errorf("read %s: %v", path, err)
		return writeError(c, http.StatusInternalServerError, "could not read asset")
	}
	meta, err := codec.ReadMetadata(data)
	if err != nil {
		return writeError(c, http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, metadataResponse{
		Kind:    kind,
		Asset:   kind.AssetName(),
		Width:   meta.Width,
		Height:  meta.Height,
		Depth:   meta.Depth,
		Samples: meta.SampleCount(),
		Bytes:   int64(len(data)),
		Extra:   meta.Extra,
	})
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"status":  status,
			"message": msg,
		},
	})
}
