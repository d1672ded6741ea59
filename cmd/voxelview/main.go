// Command voxelview flies a camera over the procedural terrain.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"voxterrain/internal/bufpool"
	"voxterrain/internal/config"
	"voxterrain/internal/logger"
	"voxterrain/internal/profiling"
	"voxterrain/internal/render/flycam"
	"voxterrain/internal/render/glrender"
	"voxterrain/internal/source"
	"voxterrain/internal/terrain"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"
	"go.uber.org/zap"
)

func init() {
	runtime.LockOSThread()
}

type app struct {
	cfg    *config.Config
	window *glfw.Window
	cam    *flycam.Camera
	noise  *source.Noise
	tr     *terrain.Terrain
	render *glrender.Renderer
	log    *zap.Logger

	cull     bool
	captured bool
}

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
	log := logger.Named("voxelview")

	// An interrupt only asks the render loop to stop; GL state is torn down
	// on the main thread before the process exits.
	var quit atomic.Bool
	done := make(chan struct{})
	closer.Bind(func() {
		select {
		case <-done:
		default:
			quit.Store(true)
			<-done
		}
		logger.Sync()
	})

	if err := run(cfg, log, &quit); err != nil {
		log.Error("voxelview failed", zap.Error(err))
	}
	close(done)
	closer.Close()
}

func run(cfg *config.Config, log *zap.Logger, quit *atomic.Bool) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw: %w", err)
	}
	defer glfw.Terminate()

	window, err := setupWindow(cfg.View)
	if err != nil {
		return err
	}

	noise := source.New(cfg.Source)
	tr, err := terrain.New(cfg, terrain.WithSource(noise), terrain.WithLogger(logger.Named("terrain")))
	if err != nil {
		return err
	}
	defer tr.Close()

	r, err := glrender.New(tr.Pool(), logger.Named("glrender"))
	if err != nil {
		return err
	}
	defer r.Dispose()
	r.Wireframe = cfg.View.Wireframe
	r.FogDistance = float32(cfg.Terrain.GridDim()-1) * float32(int(1)<<(cfg.Terrain.Levels-1)) / 2

	cam := flycam.New(mgl32.Vec3{0, float32(cfg.Source.BaseHeight) + 24, 0}, cfg.View.Width, cfg.View.Height)
	cam.FOV = cfg.View.FOV
	cam.Speed = cfg.View.Speed
	cam.Far = r.FogDistance * 2

	a := &app{
		cfg:      cfg,
		window:   window,
		cam:      cam,
		noise:    noise,
		tr:       tr,
		render:   r,
		log:      log,
		cull:     cfg.View.Cull,
		captured: true,
	}
	a.setupInput()
	a.loop(quit)
	return nil
}

func setupWindow(view config.ViewConfig) (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(view.Width, view.Height, "voxelview", nil, nil)
	if err != nil {
		return nil, err
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return nil, err
	}
	if view.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	gl.ClearColor(0.6, 0.7, 0.8, 1)
	return window, nil
}

func (a *app) loop(quit *atomic.Bool) {
	frames := 0
	lastReport := time.Now()
	lastTime := time.Now()
	var lastPoolWarn time.Time

	for !a.window.ShouldClose() && !quit.Load() {
		profiling.ResetFrame()
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		a.move(dt)
		p := a.cam.Position
		a.tr.SetPosition(p[0], p[1], p[2])

		err := a.tr.Update()
		switch {
		case errors.Is(err, bufpool.ErrPoolExhausted):
			if time.Since(lastPoolWarn) > 5*time.Second {
				a.log.Warn("buffer pool exhausted, regions wait for space", zap.Error(err))
				lastPoolWarn = now
			}
		case err != nil:
			a.log.Error("terrain update", zap.Error(err))
		}

		func() {
			defer profiling.Track("render.frame")()
			a.render.Sync()
			gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
			var f *terrain.Frustum
			if a.cull {
				f = terrain.NewFrustum(a.cam.ViewProj())
			}
			a.tr.CullRegions(f)
			a.render.Begin(a.cam.View(), a.cam.Projection(), a.cam.Position)
			a.tr.Render(nil, a.render)
			a.render.End()
		}()

		func() { defer profiling.Track("glfw.SwapBuffers")(); a.window.SwapBuffers() }()
		func() { defer profiling.Track("glfw.PollEvents")(); glfw.PollEvents() }()
		frames++

		if time.Since(lastReport) >= time.Second {
			a.report(frames)
			frames = 0
			lastReport = time.Now()
		}
	}
}

func (a *app) report(frames int) {
	st := a.tr.Stats()
	draws, tris, uploaded := a.render.FrameStats()
	a.log.Info("frame",
		zap.Int("fps", frames),
		zap.Int("draws", draws),
		zap.Int("triangles", tris),
		zap.Int("uploadedBytes", uploaded),
		zap.Int("ready", st.Regions[terrain.StatusReady]),
		zap.Int("queued", st.Regions[terrain.StatusQueued]),
		zap.Int("inFlight", st.InFlight),
		zap.Int("hybrid", st.HybridUploads),
		zap.Int("vertexInUse", st.Buffers.VertexInUse),
	)
	a.log.Debug("profile", zap.String("top", profiling.TopN(6)))
}
