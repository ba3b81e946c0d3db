package model

// Location представляет координаты тайла в игровом мире.
// Value type, передаётся по значению (immutable).
type Location struct {
	X int32
	Y int32
	Z int32 // plane (height level)
}

// NewLocation создаёт Location с указанными координатами.
func NewLocation(x, y, z int32) Location {
	return Location{X: x, Y: y, Z: z}
}

// WithCoordinates возвращает новый Location с обновлёнными координатами (immutable pattern).
func (l Location) WithCoordinates(x, y, z int32) Location {
	l.X = x
	l.Y = y
	l.Z = z
	return l
}

// Translate возвращает Location, сдвинутый на (dx, dy) в той же плоскости.
func (l Location) Translate(dx, dy int32) Location {
	l.X += dx
	l.Y += dy
	return l
}

// WithinDistance reports whether other is on the same plane and no more than
// distance tiles away along either axis.
func (l Location) WithinDistance(other Location, distance int32) bool {
	if l.Z != other.Z {
		return false
	}
	// int64: разность двух int32 может переполниться
	d := int64(distance)
	dx := int64(other.X) - int64(l.X)
	dy := int64(other.Y) - int64(l.Y)
	return dx <= d && dx >= -d && dy <= d && dy >= -d
}
