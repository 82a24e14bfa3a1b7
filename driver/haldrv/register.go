//go:build !nogpu

package haldrv

import (
	"github.com/gogpu/engine/driver"

	// Native backends register themselves with hal on init.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	driver.Register(Name, func() (driver.Driver, error) {
		return NewDefault()
	})
}
