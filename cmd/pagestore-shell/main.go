// Command pagestore-shell is a demo REPL wiring the buffer pool and
// B+-tree index together over a real config/logger/telemetry stack. It is
// not part of the storage/indexing core; it's scaffolding to drive the
// core interactively.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/pagestore/pagestore/index/bplustree"
	"github.com/pagestore/pagestore/pkg/config"
	"github.com/pagestore/pagestore/pkg/logger"
	"github.com/pagestore/pagestore/pkg/telemetry"
	"github.com/pagestore/pagestore/storage/buffer"
	"github.com/pagestore/pagestore/storage/disk"
	"github.com/pagestore/pagestore/txn"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (uses defaults if empty)")
	indexName := flag.String("index", "default", "name of the index to open")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "loading config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatal("starting telemetry", zap.Error(err))
	}
	defer shutdown(context.Background())

	dm, err := disk.New(cfg.DBFile, cfg.PageSize, cfg.DiskRateLimitBytesPerSec)
	if err != nil {
		log.Fatal("opening disk manager", zap.Error(err))
	}
	defer dm.Close()

	bpm := buffer.New(cfg.PoolSize, cfg.PageSize, cfg.ReplacerK, dm, log, tel)

	tree, err := bplustree.New[int64, int64](
		bpm, *indexName, compareInt64,
		bplustree.Int64Codec{}, bplustree.Int64Codec{},
		cfg.LeafMaxSize, cfg.InternalMaxSize, log, tel,
	)
	if err != nil {
		log.Fatal("opening index", zap.Error(err))
	}

	rl, err := readline.New("pagestore> ")
	if err != nil {
		log.Fatal("starting shell", zap.Error(err))
	}
	defer rl.Close()

	txns := txn.NewManager()

	fmt.Println("pagestore-shell: insert <k> <v> | get <k> | delete <k> | scan | dump | quit")
	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		if err := dispatch(strings.TrimSpace(line), tree, bpm, txns); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	if err := bpm.FlushAll(); err != nil {
		log.Error("flushing pool on exit", zap.Error(err))
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func dispatch(line string, tree *bplustree.BPlusTree[int64, int64], bpm *buffer.Manager, txns *txn.Manager) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "insert":
		if len(fields) != 3 {
			return fmt.Errorf("usage: insert <k> <v>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		v, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return err
		}
		tx := txns.Begin()
		if err := tree.InsertTxn(k, v, tx); err != nil {
			txns.Abort(tx)
			return err
		}
		txns.Commit(tx)
		return nil
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <k>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		v, ok, err := tree.Search(k)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("not found")
			return nil
		}
		fmt.Println(v)
		return nil
	case "delete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: delete <k>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return err
		}
		tx := txns.Begin()
		if err := tree.DeleteTxn(k, tx); err != nil {
			txns.Abort(tx)
			return err
		}
		txns.Commit(tx)
		return nil
	case "scan":
		it, err := tree.Begin()
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Valid() {
			fmt.Printf("%d -> %d\n", it.Key(), it.Value())
			it.Next()
		}
		return nil
	case "dump":
		return tree.Dump(os.Stdout)
	case "quit", "exit":
		os.Exit(0)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
