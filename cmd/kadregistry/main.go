// Package main 提供节点注册中心服务入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	kad "github.com/dep2p/go-kad"
	"github.com/dep2p/go-kad/internal/discovery/registry"
	"github.com/dep2p/go-kad/pkg/lib/log"
	"github.com/dep2p/go-kad/pkg/types"
)

var logger = log.Logger("kad/registry")

var (
	listen   = flag.String("listen", "localhost:5000", "HTTP 监听地址")
	seedPeer = flag.String("seed", registry.DefaultSeed.String(), "目录首项的种子节点（host:port）")
	maxPeers = flag.Int("max-peers", registry.DefaultMaxPeers, "目录最多保留的节点数")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	ap, err := types.ParseHostPort(*seedPeer)
	if err != nil {
		return fmt.Errorf("种子节点地址无效: %w", err)
	}
	seed := registry.Peer{HostAddress: ap.Addr().String(), HostPort: int(ap.Port())}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           registry.NewServer(seed, *maxPeers),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("注册中心已启动", "listen", *listen, "seed", seed.String(), "maxPeers", strconv.Itoa(*maxPeers), "version", kad.Version)
		errCh <- srv.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-signals:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("正在关闭注册中心")
	return srv.Shutdown(ctx)
}
