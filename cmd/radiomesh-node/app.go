package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "radiomesh/pkg/config"
    "radiomesh/pkg/identity"
    "radiomesh/pkg/memkv"
    "radiomesh/pkg/mesh"
    "radiomesh/pkg/observability"
    "radiomesh/pkg/peers"
    "radiomesh/pkg/radio/udpradio"
    "radiomesh/pkg/sched"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("radiomesh-node started", zap.String("app", cfg.AppName))

    nodeID := cfg.NodeID
    if nodeID == 0 {
        _, derived, err := identity.LoadOrGen(cfg.Identity)
        if err != nil {
            zap.L().Error("failed to init identity", zap.Error(err))
            return 1
        }
        nodeID = derived
        zap.L().Info("derived node id from identity", zap.Int32("node_id", nodeID))
    }

    rt, err := udpradio.New(udpradio.Options{
        NodeID:    nodeID,
        Group:     cfg.Group,
        GroupAddr: cfg.Radio.GroupAddr,
        BasePort:  cfg.Radio.BasePort,
        TxPower:   int8(cfg.Radio.TxPower),
    })
    if err != nil {
        zap.L().Error("failed to start radio", zap.Error(err))
        return 1
    }
    defer rt.Close()

    kv := memkv.New(memkv.Options{})
    defer kv.Close()
    stats := peers.NewStore(kv)

    helloMin, helloMax := cfg.Mesh.HelloWindow()
    jitterMin, jitterMax := cfg.Mesh.AckJitterWindow()
    eng := mesh.New(mesh.Config{
        NodeID:        nodeID,
        TTL:           uint8(cfg.Mesh.TTL),
        DedupCapacity: cfg.Mesh.DedupCapacity,
        RouteTimeout:  cfg.Mesh.RouteTimeout(),
        HelloMin:      helloMin,
        HelloMax:      helloMax,
        AckJitterMin:  jitterMin,
        AckJitterMax:  jitterMax,
    }, rt, sched.New(nil), stats)

    eng.OnString(func(src int32, msg string) {
        zap.L().Info("message", zap.Int32("from", src), zap.String("text", msg))
    })
    eng.OnNumber(func(src int32, n int32) {
        zap.L().Info("message", zap.Int32("from", src), zap.Int32("value", n))
    })
    eng.OnNodeFound(func(id int32) {
        zap.L().Info("node found", zap.Int32("node", id))
    })

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    eng.Start(ctx)
    defer eng.Close()
    eng.Discover()

    // periodic status dump
    go sched.New(nil).Every(ctx, time.Minute, time.Minute, func() {
        zap.L().Info("mesh status",
            zap.Int32s("known_nodes", eng.KnownNodes()),
            zap.Int("neighbors", len(eng.PeerStats())))
    })

    sig := make(chan os.Signal, 1)
    signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
    s := <-sig
    zap.L().Info("shutting down", zap.String("signal", s.String()))
    return 0
}
