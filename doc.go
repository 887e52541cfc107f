// Package deskrelay 提供远程桌面中继平台的服务端会话面
//
// DeskRelay 负责把远程桌面客户端接入最合适的中继节点，
// 并在整个会话生命周期内管理加密、带宽和路由：
//
//   - Crypto: 端到端加密（X25519 + HKDF-SHA256 + AES-256-GCM）
//   - Balancer: 节点注册表与分配算法（轮询/最少连接/自适应）
//   - GeoRouter: 基于客户端位置的区域路由
//   - Bandwidth: QoS 分级的带宽准入、拥塞回收与弹性扩容
//   - Relay: 组合根，会话创建/迁移/清理
//   - Protocol: CBOR 帧控制协议（TCP / WebSocket）
//   - Transfer: 会话内的加密文件传输管道
//
// # 快速开始
//
//	relay, err := deskrelay.New(
//	    deskrelay.WithConfigFile("relay.yaml"),
//	    deskrelay.WithStateFile("state.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := relay.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Stop(context.Background())
//
// 客户端侧用 Client 连接中继：
//
//	client, err := deskrelay.NewClient("client-1", "relay.example.com:7480")
//	err = client.Connect(ctx, deskrelay.ConnectOptions{
//	    QoS:           types.QoSHigh,
//	    RequestedMbps: 50,
//	})
package deskrelay
