// Copyright 2023 The rvisor Authors.
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

package linux

// UIOMaxIOV is the maximum number of struct iovec accepted by a single
// readv/writev call, UIO_MAXIOV in include/uapi/linux/uio.h.
const UIOMaxIOV = 1024

// IOVec represents struct iovec on riscv64.
type IOVec struct {
	Base uint64
	Len  uint64
}

// IOVecSize is the size in bytes of an IOVec as it appears in user memory.
const IOVecSize = 16
