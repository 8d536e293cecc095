package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/sequencer"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolmarket/vm/modules/asset"
	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

func genKey(c *cli.Context) error {
	cfg, flush, err := setup(c)
	if err != nil {
		return err
	}
	defer flush()

	password := config.Password()
	if password == "" {
		zap.L().Warn(config.EnvPassword + " not set; keystore will use an empty password")
	}
	w, err := wallet.Generate(cfg.Genesis.ChainID)
	if err != nil {
		return err
	}
	path := c.String(flagKey.Name)
	if err := wallet.SaveKey(path, password, w.PrivKey()); err != nil {
		return err
	}
	fmt.Printf("address: %s\nsaved to: %s\n", w.Address(), path)
	return nil
}

func startNode(c *cli.Context) error {
	cfg, flush, err := setup(c)
	if err != nil {
		return err
	}
	defer flush()
	log := zap.L()

	privKey, err := wallet.LoadKey(c.String(flagKey.Name), config.Password())
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// One DB with disjoint key prefixes. The sequencer owns state; RPC
	// reads go through a separate view that only sees committed data.
	state := storage.NewStateDB(db)
	view := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	chainID := cfg.Genesis.ChainID
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool(chainID)
	exec := vm.NewExecutor(chainID, state, emitter)
	seq := sequencer.New(bc, state, mempool, exec, emitter, privKey, cfg.MaxBlockTxs)

	if tip := bc.Tip(); tip == nil {
		if err := genesis(cfg, state, seq, privKey); err != nil {
			return err
		}
	} else if err := seq.ValidateBlock(tip); err != nil {
		return fmt.Errorf("stored tip: %w", err)
	} else if err := seq.CheckState(); err != nil {
		return fmt.Errorf("stored state: %w", err)
	}

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	handler := rpc.NewHandler(bc, mempool, view, idx, chainID, emitter)
	server := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), handler, cfg.RPCAuthToken, tlsCfg)
	if err := server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			log.Warn("rpc stop", zap.Error(err))
		}
	}()
	if cfg.RPCAuthToken != "" {
		log.Info("rpc bearer token authentication enabled")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		seq.Run(ctx, cfg.BlockInterval())
	}()
	log.Info("sequencer running",
		zap.String("node", cfg.NodeID),
		zap.String("chain", chainID),
		zap.String("address", privKey.Public().Hex()),
		zap.Int64("height", bc.Height()))

	<-ctx.Done()
	log.Info("shutting down")
	// Stop the sequencer before the deferred RPC stop and DB close.
	wg.Wait()
	return nil
}

// genesis funds the alloc accounts and commits block 0, which deploys the
// marketplace from the node key.
func genesis(cfg *config.Config, state core.State, seq *sequencer.Sequencer, privKey crypto.PrivateKey) error {
	if err := cfg.Genesis.Validate(); err != nil {
		return err
	}
	if err := config.ApplyAlloc(cfg, state); err != nil {
		return err
	}
	txs, err := config.GenesisTxs(cfg, privKey)
	if err != nil {
		return err
	}
	block, err := seq.Genesis(txs)
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	zap.L().Info("genesis committed",
		zap.String("hash", block.Hash),
		zap.Int("assets", len(cfg.Genesis.Market.Prices)))
	return nil
}
