// relay-server 运行 DeskRelay 中继服务器
//
// 用法：
//
//	relay-server -config relay.yaml -state state.yaml
//
// 配置缺省时使用内置默认值；状态文件携带节点、区域、
// 路由规则和 QoS 策略定义。收到 SIGINT/SIGTERM 后优雅关停。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	deskrelay "github.com/dep2p/go-deskrelay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "配置文件路径（YAML，缺省用内置默认值）")
	statePath := flag.String("state", "", "持久化状态文件路径（节点/区域/规则/QoS 策略）")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "优雅关停时限")
	flag.Parse()

	var opts []deskrelay.Option
	if *configPath != "" {
		opts = append(opts, deskrelay.WithConfigFile(*configPath))
	}
	if *statePath != "" {
		opts = append(opts, deskrelay.WithStateFile(*statePath))
	}

	relay, err := deskrelay.New(opts...)
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = relay.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	fmt.Printf("relay-server listening on %s\n", relay.ControlAddr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Printf("received %v, shutting down\n", sig)

	stopCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	return relay.Stop(stopCtx)
}
