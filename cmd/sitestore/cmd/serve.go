package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aweris/sitestore/internal/cache"
	"github.com/aweris/sitestore/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cloud KV and file endpoints",
	Long:  "Run the reference KV and file endpoints backed by a local cache driver.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Int64("max-upload", server.DefaultMaxUpload, "maximum upload size in bytes")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("serve.max_upload", serveCmd.Flags().Lookup("max-upload"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	logger := newLogger()

	driver := viper.GetString("cache_driver")
	dir := filepath.Join(viper.GetString("cache_dir"), "server")
	path := dir
	if driver == cache.DriverSQLite {
		path = filepath.Join(dir, "server.db")
	}
	if driver != cache.DriverMemory {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create server dir: %w", err)
		}
	}

	store, err := cache.Open(cache.Options{Driver: driver, Path: path, Compression: true})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	token := viper.GetString("token")
	if token == "" {
		fmt.Fprintln(os.Stderr, "Warning: no token configured, writes are unauthenticated")
	}

	srv := &http.Server{
		Addr: viper.GetString("serve.addr"),
		Handler: server.New(store,
			server.WithToken(token),
			server.WithMaxUpload(viper.GetInt64("serve.max_upload")),
			server.WithLogger(logger),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "Serving %s and %s on %s\n", server.DefaultKVPath, server.DefaultFilePath, srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
