package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
)

const (
	editReach  = 12
	editRadius = 4
)

func (a *app) setupInput() {
	a.window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if a.captured {
			a.cam.Look(xpos, ypos)
		}
	})

	a.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press || !a.captured {
			return
		}
		at := a.cam.Position.Add(a.cam.Front().Mul(editReach))
		switch button {
		case glfw.MouseButtonLeft:
			a.noise.Carve(at, editRadius)
		case glfw.MouseButtonRight:
			a.noise.Fill(at, editRadius)
		}
	})

	a.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			a.captured = !a.captured
			if a.captured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
				a.cam.ResetMouse()
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		case glfw.KeyF:
			a.render.Wireframe = !a.render.Wireframe
		case glfw.KeyC:
			a.cull = !a.cull
			a.log.Info("frustum culling", zap.Bool("enabled", a.cull))
		case glfw.KeyH:
			a.log.Info("hybrid", zap.Stringer("state", a.tr.HybridState()), zap.Int("requests", a.tr.Stats().HybridRequests))
		case glfw.KeyQ:
			a.window.SetShouldClose(true)
		}
	})
}

func (a *app) move(dt float64) {
	if !a.captured {
		return
	}
	axis := func(pos, neg glfw.Key) float32 {
		var v float32
		if a.window.GetKey(pos) == glfw.Press {
			v++
		}
		if a.window.GetKey(neg) == glfw.Press {
			v--
		}
		return v
	}
	speed := a.cam.Speed
	if a.window.GetKey(glfw.KeyLeftControl) == glfw.Press {
		a.cam.Speed *= 4
	}
	a.cam.Move(axis(glfw.KeyW, glfw.KeyS), axis(glfw.KeyD, glfw.KeyA), axis(glfw.KeySpace, glfw.KeyLeftShift), dt)
	a.cam.Speed = speed
}
