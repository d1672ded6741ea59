package voxel

// Face identifies one of the six axis-aligned faces of a volume.
type Face uint8

const (
	FacePosX Face = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// Faces lists every face in declaration order.
var Faces = [6]Face{FacePosX, FaceNegX, FacePosY, FaceNegY, FacePosZ, FaceNegZ}

// Axis returns 0, 1 or 2 for X, Y or Z.
func (f Face) Axis() int {
	return int(f) / 2
}

// Sign returns +1 for positive faces and -1 for negative ones.
func (f Face) Sign() int {
	if f%2 == 0 {
		return 1
	}
	return -1
}

// Opposite returns the face on the other side of the same axis.
func (f Face) Opposite() Face {
	return f ^ 1
}

// FaceFor returns the face on axis pointing in the direction of sign.
func FaceFor(axis, sign int) Face {
	f := Face(axis * 2)
	if sign < 0 {
		f++
	}
	return f
}

func (f Face) String() string {
	switch f {
	case FacePosX:
		return "+X"
	case FaceNegX:
		return "-X"
	case FacePosY:
		return "+Y"
	case FaceNegY:
		return "-Y"
	case FacePosZ:
		return "+Z"
	case FaceNegZ:
		return "-Z"
	default:
		return "?"
	}
}
