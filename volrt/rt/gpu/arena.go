package gpu

// Arena tracks the resources a renderer created on its backend so each one is
// released exactly once. It is not safe for concurrent use.
type Arena struct {
	backend Backend
	live    map[ResourceID]ResourceKind
	order   []ResourceID
}

func NewArena(backend Backend) *Arena {
	return &Arena{
		backend: backend,
		live:    make(map[ResourceID]ResourceKind),
	}
}

func (a *Arena) track(id ResourceID, kind ResourceKind) ResourceID {
	a.live[id] = kind
	a.order = append(a.order, id)
	return id
}

func (a *Arena) Texture3D(desc Texture3DDesc) (ResourceID, error) {
	id, err := a.backend.CreateTexture3D(desc)
	if err != nil {
		return "", err
	}
	return a.track(id, KindTexture3D), nil
}

func (a *Arena) Texture2D(desc Texture2DDesc) (ResourceID, error) {
	id, err := a.backend.CreateTexture2D(desc)
	if err != nil {
		return "", err
	}
	return a.track(id, KindTexture2D), nil
}

func (a *Arena) Geometry(geom Geometry) (ResourceID, error) {
	id, err := a.backend.CreateGeometry(geom)
	if err != nil {
		return "", err
	}
	return a.track(id, KindGeometry), nil
}

func (a *Arena) Material(desc MaterialDesc) (ResourceID, error) {
	id, err := a.backend.CreateMaterial(desc)
	if err != nil {
		return "", err
	}
	return a.track(id, KindMaterial), nil
}

// Release frees id on the backend. Unknown, empty or already released ids
// are ignored; the return value reports whether anything was freed.
func (a *Arena) Release(id ResourceID) bool {
	if _, ok := a.live[id]; !ok {
		return false
	}
	delete(a.live, id)
	for i, o := range a.order {
		if o == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.backend.Release(id)
	return true
}

// ReleaseAll frees every live resource, newest first, so materials go before
// the textures they sample.
func (a *Arena) ReleaseAll() int {
	n := 0
	for i := len(a.order) - 1; i >= 0; i-- {
		id := a.order[i]
		if _, ok := a.live[id]; ok {
			a.backend.Release(id)
			n++
		}
	}
	a.live = make(map[ResourceID]ResourceKind)
	a.order = nil
	return n
}

func (a *Arena) Has(id ResourceID) bool {
	_, ok := a.live[id]
	return ok
}

func (a *Arena) Kind(id ResourceID) (ResourceKind, bool) {
	k, ok := a.live[id]
	return k, ok
}

func (a *Arena) Len() int {
	return len(a.live)
}
