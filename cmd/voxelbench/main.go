// Command voxelbench drives the terrain headlessly along a scripted path and
// reports throughput, region statistics and per-stage timings.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/config"
	"voxterrain/internal/debugviz"
	"voxterrain/internal/logger"
	"voxterrain/internal/profiling"
	"voxterrain/internal/source"
	"voxterrain/internal/terrain"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"go.uber.org/zap"
)

var (
	flagTicks     = flag.Int("ticks", 600, "Number of Update calls")
	flagSpeed     = flag.Float64("speed", 2, "Path speed in level-0 units per tick")
	flagCarve     = flag.Int("carve-every", 50, "Carve a sphere ahead of the path every N ticks (0 disables)")
	flagSnapshot  = flag.String("snapshot", "", "Write a PNG of a density slice here when done")
	flagSnapLevel = flag.Int("snapshot-level", 0, "Level for -snapshot")
	flagSnapScale = flag.Int("snapshot-scale", 4, "Pixel scale for -snapshot")
)

func main() {
	config.ParseFlags()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log := logger.Named("voxelbench")

	noise := source.New(cfg.Source)
	tr, err := terrain.New(cfg, terrain.WithSource(noise), terrain.WithLogger(logger.Named("terrain")))
	if err != nil {
		log.Fatal("terrain", zap.Error(err))
	}
	closer.Bind(func() {
		tr.Close()
		logger.Sync()
	})

	if err := bench(tr, noise, log); err != nil {
		log.Error("bench failed", zap.Error(err))
	}
	closer.Close()
}

// pathAt is a gentle weave along +X at the nominal surface height.
func pathAt(tick int, speed float64, height float32) mgl32.Vec3 {
	x := float64(tick) * speed
	return mgl32.Vec3{float32(x), height + 16, float32(40 * math.Sin(x/120))}
}

func bench(tr *terrain.Terrain, noise *source.Noise, log *zap.Logger) error {
	cfg := tr.Config()
	height := float32(cfg.Source.BaseHeight)
	start := time.Now()
	exhausted := 0

	for tick := 0; tick < *flagTicks; tick++ {
		p := pathAt(tick, *flagSpeed, height)
		tr.SetPosition(p[0], p[1], p[2])
		if *flagCarve > 0 && tick > 0 && tick%*flagCarve == 0 {
			ahead := pathAt(tick+8, *flagSpeed, height)
			noise.Carve(ahead.Sub(mgl32.Vec3{0, 16, 0}), 6)
		}
		err := tr.Update()
		switch {
		case errors.Is(err, bufpool.ErrPoolExhausted):
			exhausted++
		case err != nil:
			return fmt.Errorf("tick %d: %w", tick, err)
		}
	}
	elapsed := time.Since(start)

	st := tr.Stats()
	log.Info("bench done",
		zap.Int("ticks", *flagTicks),
		zap.Duration("elapsed", elapsed),
		zap.Duration("perTick", elapsed/time.Duration(max(*flagTicks, 1))),
		zap.Int("loads", st.Loads),
		zap.Int("slices", st.Slices),
		zap.Int("dispatched", st.Dispatched),
		zap.Int("completed", st.Completed),
		zap.Int("discarded", st.Discarded),
		zap.Int("failed", st.Failed),
		zap.Int("uploaded", st.Uploaded),
		zap.Int("collapses", st.Collapses),
		zap.Int("rotations", st.Rotations),
		zap.Int("hybridUploads", st.HybridUploads),
		zap.Int("exhaustedTicks", exhausted),
		zap.Int("edits", noise.Edits()),
	)
	for s, n := range st.Regions {
		log.Info("regions", zap.Stringer("status", s), zap.Int("count", n))
	}
	log.Info("buffers",
		zap.Int("allocations", st.Buffers.Allocations),
		zap.Int("vertexInUse", st.Buffers.VertexInUse),
		zap.Int("indexInUse", st.Buffers.IndexInUse))
	fmt.Println(profiling.TopN(10))

	if *flagSnapshot != "" {
		return snapshot(tr, log)
	}
	return nil
}

func snapshot(tr *terrain.Terrain, log *zap.Logger) error {
	l := tr.Level(*flagSnapLevel)
	if l == nil {
		return fmt.Errorf("snapshot: %w", terrain.ErrBadLevel)
	}
	g := l.Grid()
	img, err := debugviz.Slice(g, 2, g.Dims()[2]/2)
	if err != nil {
		return err
	}
	out := debugviz.Scale(img, *flagSnapScale)
	debugviz.Label(out, fmt.Sprintf("lod %d origin %v", l.Index(), l.Origin()))
	if err := debugviz.WritePNG(*flagSnapshot, out); err != nil {
		return err
	}
	log.Info("snapshot written", zap.String("path", *flagSnapshot))
	return nil
}
