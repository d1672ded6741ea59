package glrender

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

const vertexShader = `#version 410 core
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec3 aNormal;

uniform mat4 proj;
uniform mat4 view;
uniform mat4 model;

out vec3 vNormal;
out vec3 vWorld;

void main() {
	vec4 world = model * vec4(aPos, 1.0);
	vWorld = world.xyz;
	vNormal = aNormal;
	gl_Position = proj * view * world;
}
`

const fragmentShader = `#version 410 core
in vec3 vNormal;
in vec3 vWorld;

uniform vec3 lightDir;
uniform vec3 tint;
uniform vec3 eye;
uniform float fogDistance;

out vec4 fragColor;

void main() {
	float diffuse = max(dot(normalize(vNormal), lightDir), 0.0);
	vec3 color = tint * (0.3 + 0.7 * diffuse);
	float fog = clamp(length(vWorld - eye) / fogDistance, 0.0, 1.0);
	fragColor = vec4(mix(color, vec3(0.6, 0.7, 0.8), fog * fog), 1.0);
}
`

// shader is a linked program with its uniform locations looked up once.
type shader struct {
	id       uint32
	uniforms map[string]int32
}

func newShader(vertexSrc, fragmentSrc string) (*shader, error) {
	id, err := compileProgram(vertexSrc, fragmentSrc)
	if err != nil {
		return nil, err
	}
	return &shader{id: id, uniforms: make(map[string]int32)}, nil
}

func (s *shader) use() { gl.UseProgram(s.id) }

func (s *shader) location(name string) int32 {
	if loc, ok := s.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(s.id, gl.Str(name+"\x00"))
	s.uniforms[name] = loc
	return loc
}

func (s *shader) setFloat(name string, v float32) {
	gl.Uniform1f(s.location(name), v)
}

func (s *shader) setVec3(name string, v mgl32.Vec3) {
	gl.Uniform3f(s.location(name), v[0], v[1], v[2])
}

func (s *shader) setMat4(name string, m *mgl32.Mat4) {
	gl.UniformMatrix4fv(s.location(name), 1, false, &m[0])
}

func (s *shader) delete() {
	if s.id != 0 {
		gl.DeleteProgram(s.id)
		s.id = 0
	}
}

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}
	defer gl.DeleteShader(vs)
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(program, n, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("%w: link: %s", ErrShader, log)
	}
	return program, nil
}

func compileShader(source string, kind uint32) (uint32, error) {
	sh := gl.CreateShader(kind)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(sh, n, nil, gl.Str(log))
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("%w: compile: %s", ErrShader, log)
	}
	return sh, nil
}
