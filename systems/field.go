package systems

import (
	"errors"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
)

// FieldTextures are the read-only U and V component textures of a grid.
// They may be shared by several engines on one host.
type FieldTextures struct {
	U, V gpu.Texture
}

// UploadField creates R32F component textures laid out by the grid and
// uploads its data.
func UploadField(host gpu.Host, g *field.Grid) (FieldTextures, error) {
	w, h := g.TextureSize()

	var ft FieldTextures
	var err error
	if ft.U, err = host.CreateTexture(w, h, gpu.R32F); err != nil {
		return FieldTextures{}, err
	}
	if ft.V, err = host.CreateTexture(w, h, gpu.R32F); err != nil {
		return FieldTextures{}, errors.Join(err, host.Release(ft.U))
	}
	if err = host.Upload(ft.U, g.U()); err != nil {
		return FieldTextures{}, errors.Join(err, ft.Release(host))
	}
	if err = host.Upload(ft.V, g.V()); err != nil {
		return FieldTextures{}, errors.Join(err, ft.Release(host))
	}
	return ft, nil
}

// Release frees both textures.
func (ft FieldTextures) Release(host gpu.Host) error {
	var res []gpu.Resource
	if ft.U != nil {
		res = append(res, ft.U)
	}
	if ft.V != nil {
		res = append(res, ft.V)
	}
	return host.Release(res...)
}
