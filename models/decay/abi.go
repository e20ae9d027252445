//go:build wasip1

package main

import (
	"encoding/json"
	"unsafe"
)

// Log levels understood by env.log.
const (
	levelDebug uint32 = 0
	levelInfo  uint32 = 1
	levelWarn  uint32 = 2
)

//go:wasmimport env log
func hostLog(level, ptr, size uint32)

var (
	instance = &model{}

	// pinned keeps buffers handed to the host reachable until freed.
	pinned = map[uint32][]byte{}
)

func logf(level uint32, msg string) {
	if msg == "" {
		return
	}
	b := []byte(msg)
	hostLog(level, uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b)))
}

//go:wasmexport malloc
func malloc(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	pinned[ptr] = buf
	return ptr
}

//go:wasmexport free
func free(ptr uint32) {
	delete(pinned, ptr)
}

func input(ptr, size uint32) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), size)
}

// output marshals v, or the error envelope when err is set, into a pinned
// buffer and packs its address and length.
func output(v interface{}, err error) uint64 {
	if err != nil {
		ge, ok := err.(*guestError)
		if !ok {
			ge = &guestError{Kind: kindModelFailure, Message: err.Error()}
		}
		logf(levelWarn, ge.Error())
		v = map[string]*guestError{"error": ge}
	}
	if v == nil {
		return 0
	}
	data, merr := json.Marshal(v)
	if merr != nil {
		data = []byte(`{"error":{"kind":"model_failure","message":"failed to encode output"}}`)
	}
	ptr := malloc(uint32(len(data)))
	copy(pinned[ptr], data)
	return uint64(ptr)<<32 | uint64(len(data))
}

func decode(ptr, size uint32, v interface{}) error {
	if err := json.Unmarshal(input(ptr, size), v); err != nil {
		return errorf(kindModelFailure, "decode request: %v", err)
	}
	return nil
}

//go:wasmexport bmi_describe
func bmiDescribe(ptr, size uint32) uint64 {
	return output(describe(), nil)
}

//go:wasmexport bmi_configure
func bmiConfigure(ptr, size uint32) uint64 {
	var req configureRequest
	if err := decode(ptr, size, &req); err != nil {
		return output(nil, err)
	}
	resp, err := instance.configure(req)
	return output(resp, err)
}

//go:wasmexport bmi_allocate
func bmiAllocate(ptr, size uint32) uint64 {
	var req allocateRequest
	if err := decode(ptr, size, &req); err != nil {
		return output(nil, err)
	}
	resp, err := instance.allocate(req)
	if err != nil {
		return output(nil, err)
	}
	for i := range resp.Variables {
		v := &resp.Variables[i]
		v.Ptr = uint32(uintptr(unsafe.Pointer(&v.Values[0])))
	}
	logf(levelDebug, "allocated "+RateVar+" and "+ConcentrationVar)
	return output(resp, nil)
}

//go:wasmexport bmi_advance
func bmiAdvance(ptr, size uint32) uint64 {
	var req advanceRequest
	if err := decode(ptr, size, &req); err != nil {
		return output(nil, err)
	}
	return output(struct{}{}, instance.advance(req.DT, 1))
}

//go:wasmexport bmi_advance_fraction
func bmiAdvanceFraction(ptr, size uint32) uint64 {
	var req advanceRequest
	if err := decode(ptr, size, &req); err != nil {
		return output(nil, err)
	}
	return output(struct{}{}, instance.advance(req.DT, req.Fraction))
}

//go:wasmexport bmi_save_state
func bmiSaveState(ptr, size uint32) uint64 {
	blob, err := instance.saveState()
	return output(blob, err)
}

//go:wasmexport bmi_load_state
func bmiLoadState(ptr, size uint32) uint64 {
	var blob stateBlob
	if err := decode(ptr, size, &blob); err != nil {
		return output(nil, err)
	}
	return output(struct{}{}, instance.loadState(blob))
}

//go:wasmexport bmi_release
func bmiRelease(ptr, size uint32) uint64 {
	instance.release()
	logf(levelInfo, "released")
	return 0
}
