package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"impractical.co/docshell/internal/assets"
	"impractical.co/docshell/internal/config"
	"impractical.co/docshell/internal/cssbundle"
	"impractical.co/docshell/internal/server"
)

func assetFS(cfg *config.Config) fs.FS {
	if cfg.AssetsDir != "" {
		return os.DirFS(cfg.AssetsDir)
	}
	return assets.Embedded()
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	bundle, err := cssbundle.Bundler{
		FS:      assetFS(cfg),
		Entries: cfg.Bundle.Entries,
		Minify:  cfg.Bundle.Minify,
	}.Build(cmd.Context())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	dst := filepath.Join(outDir, path.Base(bundle.Href))
	if err := os.WriteFile(dst, bundle.Contents, 0o644); err != nil { // #nosec G306 -- served publicly
		return fmt.Errorf("write bundle: %w", err)
	}
	log.Info().Str("path", dst).Int("bytes", len(bundle.Contents)).Msg("wrote css bundle")
	_, err = fmt.Fprintln(cmd.OutOrStdout(), bundle.Href)
	return err
}

type linkJSON struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

func runLinks(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	srv, err := server.New(cmd.Context(), cfg, server.Options{Assets: assetFS(cfg)})
	if err != nil {
		return err
	}
	defer srv.Close()

	links := srv.Links()
	out := make([]linkJSON, 0, len(links))
	for _, link := range links {
		out = append(out, linkJSON{Rel: link.Rel, Href: link.Href, Type: link.Type})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
