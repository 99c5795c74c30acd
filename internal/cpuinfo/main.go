// Copyright 2025 go-highway Authors
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

// Package main is a standalone diagnostic program: it prints the CPU
// features and SIMD dispatch level a worker on this machine would pick,
// without standing up a full mailbox.
package main

import (
	"fmt"
	"runtime"

	"github.com/fastllm-numa/numacore/hwy"
	"github.com/fastllm-numa/numacore/numapin"
)

func main() {
	fmt.Printf("GOOS: %s\n", runtime.GOOS)
	info := numapin.Diagnose()
	fmt.Printf("GOARCH: %s\n", info.GOARCH)
	fmt.Printf("NumCPU: %d\n", info.NumCPU)
	fmt.Println()

	fmt.Printf("Highway dispatch level: %s\n", hwy.CurrentLevel())
	fmt.Printf("Highway dispatch width: %d bytes\n", hwy.CurrentWidth())
	fmt.Printf("Highway dispatch name: %s\n", hwy.CurrentName())
	fmt.Println()

	switch info.GOARCH {
	case "arm64":
		fmt.Println("=== golang.org/x/sys/cpu.ARM64 ===")
		fmt.Printf("  HasASIMD: %v (NEON baseline)\n", info.HasNEON)
		fmt.Printf("  HasSVE:   %v (Scalable Vector Extension)\n", info.HasSVE)
	case "amd64":
		fmt.Println("=== golang.org/x/sys/cpu.X86 ===")
		fmt.Printf("  HasAVX2:    %v\n", info.HasAVX2)
		fmt.Printf("  HasAVX512F: %v\n", info.HasAVX512F)
		fmt.Printf("  HasFMA:     %v\n", info.HasFMA)
	}

	fmt.Println()
	fmt.Printf("Highway HasARMFP16: %v\n", hwy.HasARMFP16())
	fmt.Printf("Highway HasARMBF16: %v\n", hwy.HasARMBF16())
}
