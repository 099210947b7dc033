// Package sysinfo collects host metadata recorded alongside bench results,
// so that accuracy numbers can be traced back to the machine that produced
// them.
package sysinfo

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/jingmouren/gallerybench/internal/models"
)

// Collect returns metadata about the current host. CPU fields come from
// the CPUID instruction and are zero on platforms without it.
func Collect() models.HostInfo {
	return models.HostInfo{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CPU:           cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		AVX512:        cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
	}
}
