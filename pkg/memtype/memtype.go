// Copyright 2026 The A1 Kernel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memtype resolves mapping classes to descriptor attribute bits.
//
// A mapping class selects a cacheability, shareability and access policy.
// Each class resolves to two encodings: one for second-level (page)
// descriptors and one for first-level (section) descriptors, since the two
// descriptor formats place their attribute fields differently.
package memtype

// Type is a mapping class.
type Type uint8

// The known mapping classes.
const (
	// Device is shared device memory, the default for I/O mappings.
	Device Type = iota

	// DeviceNonShared is non-shareable device memory.
	DeviceNonShared

	// DeviceCached is device memory that may be cached, for devices that
	// snoop or tolerate it.
	DeviceCached

	// DeviceWriteCombine is device memory with write combining.
	DeviceWriteCombine

	// Uncached is strongly-ordered memory.
	Uncached

	numTypes
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case Device:
		return "device"
	case DeviceNonShared:
		return "device-nonshared"
	case DeviceCached:
		return "device-cached"
	case DeviceWriteCombine:
		return "device-wc"
	case Uncached:
		return "uncached"
	default:
		return "unknown"
	}
}

// Parse returns the class named by s.
func Parse(s string) (Type, bool) {
	for t := Device; t < numTypes; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Second-level (small page) descriptor attribute bits.
const (
	PTESmall      = 1 << 1 // descriptor type: small page
	PTEBufferable = 1 << 2
	PTECacheable  = 1 << 3
	PTEAPWrite    = 1 << 4 // AP: privileged read/write
	PTETEX1       = 1 << 6 // TEX[0]
	PTETEX2       = 2 << 6 // TEX[1]
)

// First-level (section) descriptor attribute bits.
const (
	SectSection    = 1 << 1 // descriptor type: section
	SectBufferable = 1 << 2
	SectCacheable  = 1 << 3
	SectXN         = 1 << 4
	SectAPWrite    = 1 << 10 // AP: privileged read/write
	SectTEX1       = 1 << 12 // TEX[0]
	SectTEX2       = 2 << 12 // TEX[1]
	SectShared     = 1 << 16
)

// MemType carries the resolved attribute encodings for one mapping class.
type MemType struct {
	// PTEProt is the attribute word for second-level descriptors.
	PTEProt uint32

	// SectProt is the attribute word for first-level section
	// descriptors.
	SectProt uint32
}

var types = [numTypes]MemType{
	Device: {
		PTEProt:  PTESmall | PTEAPWrite | PTEBufferable,
		SectProt: SectSection | SectAPWrite | SectXN | SectBufferable | SectShared,
	},
	DeviceNonShared: {
		PTEProt:  PTESmall | PTEAPWrite | PTETEX2,
		SectProt: SectSection | SectAPWrite | SectXN | SectTEX2,
	},
	DeviceCached: {
		PTEProt:  PTESmall | PTEAPWrite | PTECacheable | PTEBufferable,
		SectProt: SectSection | SectAPWrite | SectCacheable | SectBufferable,
	},
	DeviceWriteCombine: {
		PTEProt:  PTESmall | PTEAPWrite | PTETEX1,
		SectProt: SectSection | SectAPWrite | SectXN | SectTEX1,
	},
	Uncached: {
		PTEProt:  PTESmall | PTEAPWrite,
		SectProt: SectSection | SectAPWrite | SectXN,
	},
}

// Lookup resolves a mapping class. It fails for classes this table does not
// know, which callers must treat as a failure of the whole operation.
func Lookup(t Type) (*MemType, bool) {
	if t >= numTypes {
		return nil, false
	}
	return &types[t], true
}
