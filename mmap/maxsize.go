package mmap

import "math/bits"

// MaxSize is the largest file Map accepts: 2 GB on 32-bit platforms and
// 256 TB on 64-bit ones, matching the usual virtual address space limits.
const MaxSize = (1<<31 - 1) + (bits.UintSize/64)*(1<<48-1<<31)
