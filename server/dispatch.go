package server

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/fastllm-numa/numacore/attention"
	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/kernel"
	"github.com/fastllm-numa/numacore/moe"
	"github.com/fastllm-numa/numacore/quant"
	"github.com/fastllm-numa/numacore/shm"
	"github.com/fastllm-numa/numacore/weights"
)

func (s *Server) Dispatch(task shm.TaskCode) error {
	switch task {
	case shm.TaskLinearInt, shm.TaskLinearFloat:
		return s.dispatchLinear(task == shm.TaskLinearInt)
	case shm.TaskMoEInt:
		return s.dispatchMoE()
	case shm.TaskAppendKVCache:
		return s.dispatchAppendKV()
	case shm.TaskDoAttention:
		return s.dispatchAttention()
	case shm.TaskGetServerInfo:
		return s.dispatchServerInfo()
	case shm.TaskFindData:
		return s.dispatchFindData()
	case shm.TaskStartLongData:
		return s.dispatchStartLongData()
	case shm.TaskFinishLongData:
		return s.dispatchFinishLongData()
	default:
		return fmt.Errorf("%w: unknown task code %v", errs.ErrConfiguration, task)
	}
}

// linearHeader is the int32[10] frame header of §6: {n, m, k, group,
// groupCnt, weightNameLen, biasNameLen, exType, outDtype, _}.
type linearHeader struct {
	N, M, K, Group, GroupCnt  int32
	WeightNameLen, BiasNameLen int32
	ExType, OutDtype           int32
	_                          int32
}

func readLinearHeader(b []byte) linearHeader {
	var h linearHeader
	read := func(i int) int32 {
		return int32(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	h.N, h.M, h.K = read(0), read(1), read(2)
	h.Group, h.GroupCnt = read(3), read(4)
	h.WeightNameLen, h.BiasNameLen = read(5), read(6)
	h.ExType, h.OutDtype = read(7), read(8)
	return h
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : i*4+4]))
	}
	return out
}

func (s *Server) dispatchLinear(quantizedInput bool) error {
	in := s.Region.Input()
	h := readLinearHeader(in)
	off := 40 // 10 * int32

	var configs []quant.LowBitConfig
	if quantizedInput {
		configs = parseActivationConfigs(in[off:], int(h.N))
		off += int(h.N) * 8
	}

	weightName := string(in[off : off+int(h.WeightNameLen)])
	off += int(h.WeightNameLen)
	biasName := string(in[off : off+int(h.BiasNameLen)])
	off += int(h.BiasNameLen)

	w, ok := s.Weights.Lookup(weightName)
	if !ok {
		return fmt.Errorf("%w: unknown weight %q referenced by linear op", errs.ErrState, weightName)
	}

	var input []float32
	if quantizedInput {
		input = dequantizeActivation(in[off:off+int(h.N)*int(h.M)], int(h.M), configs)
	} else {
		elemSize := 4
		input = bytesToFloat32Slice(in[off : off+int(h.N)*int(h.M)*elemSize])
	}

	var bias []float32
	if biasName != "" {
		if bw, ok := s.Weights.Lookup(biasName); ok {
			bias = bw.Bias
		}
	} else {
		bias = w.Bias
	}

	m := int(h.M)
	if w.Type == dtype.LinearColumn {
		// A column shard multiplies only its own columns of each input row; the
		// client sums the partial outputs, so only worker 0 adds the bias.
		rng := weights.ColumnShardRange(m, s.PartID, s.PartCount)
		local := make([]float32, int(h.N)*w.LocalM)
		for row := 0; row < int(h.N); row++ {
			copy(local[row*w.LocalM:(row+1)*w.LocalM], input[row*m+rng.Start:row*m+rng.End])
		}
		input, m = local, w.LocalM
		if s.PartID != 0 {
			bias = nil
		}
	}

	out, err := kernel.RunLinear(input, int(h.N), m, w, bias, dtype.FusedActivation(h.ExType))
	if err != nil {
		return err
	}

	return s.writeOutputBand(int(h.N), w.FullK, out)
}

// parseActivationConfigs reads n (min, scale) tuples — one per activation
// row — and derives the matching LowBitConfig (8-bit unsigned grid, per
// quant.QuantizeUint8Row) for each, recovering the zero point the same way
// quant.NewLowBitConfig does.
func parseActivationConfigs(b []byte, n int) []quant.LowBitConfig {
	configs := make([]quant.LowBitConfig, n)
	for i := 0; i < n; i++ {
		min := math.Float32frombits(binary.LittleEndian.Uint32(b[i*8 : i*8+4]))
		scale := math.Float32frombits(binary.LittleEndian.Uint32(b[i*8+4 : i*8+8]))
		cfg := quant.LowBitConfig{Min: min, Scale: scale, Bits: 8, Sign: quant.Unsigned}
		if scale != 0 {
			cfg.ZeroPoint = float32(math.Round(float64(-min / scale)))
		}
		configs[i] = cfg
	}
	return configs
}

// dequantizeActivation reconstructs an [n, m] float32 activation (n =
// len(configs)) from its per-row uint8 codes using the transmitted per-row
// LowBitConfig.
func dequantizeActivation(codes []byte, m int, configs []quant.LowBitConfig) []float32 {
	out := make([]float32, len(configs)*m)
	for row, cfg := range configs {
		rowCodes := codes[row*m : (row+1)*m]
		for j, c := range rowCodes {
			out[row*m+j] = cfg.Dequantize(float32(c))
		}
	}
	return out
}

func (s *Server) writeOutputBand(n, fullK int, band []float32) error {
	elemSize := 4
	bandOffset := s.PartID * n * fullK * elemSize
	outRegion := s.Region.Output()
	if bandOffset+len(band)*elemSize > len(outRegion) {
		return fmt.Errorf("%w: output band overruns the output region", errs.ErrState)
	}
	for i, v := range band {
		binary.LittleEndian.PutUint32(outRegion[bandOffset+i*4:bandOffset+i*4+4], math.Float32bits(v))
	}
	return nil
}

// moeHeader mirrors §6's JSON MoE header.
type moeHeader struct {
	N, M, K, Group, GroupCnt int
	OutputType               int
	TopK                     int
	NeedNorm                 bool
	SharedIndex              int
	SharedScale              float32
	RouteScale               float32
	Logits                   []float32
	GateUpNames              []string
	DownNames                []string
}

func (s *Server) dispatchMoE() error {
	in := s.Region.Input()
	jsonLen := binary.LittleEndian.Uint32(in[0:4])
	var h moeHeader
	if err := json.Unmarshal(in[4:4+jsonLen], &h); err != nil {
		return fmt.Errorf("%w: parse MoE header: %v", errs.ErrConfiguration, err)
	}
	off := 4 + int(jsonLen)
	configs := parseActivationConfigs(in[off:], h.N)
	off += h.N * 8

	activation := dequantizeActivation(in[off:off+h.N*h.M], h.M, configs)

	experts := make([]moe.Expert, len(h.GateUpNames))
	for i := range experts {
		gu, ok := s.Weights.Lookup(h.GateUpNames[i])
		if !ok {
			return fmt.Errorf("%w: unknown moe gate_up weight %q", errs.ErrState, h.GateUpNames[i])
		}
		dn, ok := s.Weights.Lookup(h.DownNames[i])
		if !ok {
			return fmt.Errorf("%w: unknown moe down weight %q", errs.ErrState, h.DownNames[i])
		}
		experts[i] = moe.Expert{GateUp: gu, Down: dn}
	}

	cfg := moe.Config{
		TopK:        h.TopK,
		NeedNorm:    h.NeedNorm,
		SharedIndex: h.SharedIndex,
		SharedScale: h.SharedScale,
		RouteScale:  h.RouteScale,
	}
	out, err := moe.Run(activation, h.K, experts, h.Logits, cfg)
	if err != nil {
		return err
	}
	return s.writeOutputBand(1, h.K, out)
}

func (s *Server) dispatchAppendKV() error {
	in := s.Region.Input()
	uid := binary.LittleEndian.Uint64(in[0:8])
	dimsSize := int32(binary.LittleEndian.Uint32(in[8:12]))
	if dimsSize != 3 {
		return fmt.Errorf("%w: KV append expects dimsSize=3, got %d", errs.ErrConfiguration, dimsSize)
	}
	heads := int32(binary.LittleEndian.Uint32(in[12:16]))
	newLen := int32(binary.LittleEndian.Uint32(in[16:20]))
	dim := int32(binary.LittleEndian.Uint32(in[20:24]))
	off := 28 // skip the dtype tag word too

	localHeads := int(heads) / s.PartCount
	headBytes := int(newLen) * int(dim) * 4
	start := off + s.PartID*localHeads*headBytes
	fresh := bytesToFloat32Slice(in[start : start+localHeads*headBytes])
	s.KV.Append(uid, localHeads, int(dim), fresh, int(newLen))
	return nil
}

type attentionHeader struct {
	KID, VID int64
	QHead    int
	QLen     int
	QDim     int
	Group    int
	Scale    float32
	MaskType string
}

func (s *Server) dispatchAttention() error {
	in := s.Region.Input()
	jsonLen := binary.LittleEndian.Uint32(in[0:4])
	var h attentionHeader
	if err := json.Unmarshal(in[4:4+jsonLen], &h); err != nil {
		return fmt.Errorf("%w: parse attention header: %v", errs.ErrConfiguration, err)
	}
	off := 4 + int(jsonLen)

	localHq := h.QHead / s.PartCount
	qOff := off + s.PartID*localHq*h.QLen*h.QDim*4
	q := bytesToFloat32Slice(in[qOff : qOff+localHq*h.QLen*h.QDim*4])

	cache := s.KV.Get(uint64(h.KID), localHq/h.Group, h.QDim)
	vcache := s.KV.Get(uint64(h.VID), localHq/h.Group, h.QDim)

	out := make([]float32, localHq*h.QLen*h.QDim)
	for lh := 0; lh < localHq; lh++ {
		kvHead := lh / h.Group
		k := cache.HeadSlice(kvHead)
		v := vcache.HeadSlice(kvHead)
		qHead := q[lh*h.QLen*h.QDim : (lh+1)*h.QLen*h.QDim]
		outHead := out[lh*h.QLen*h.QDim : (lh+1)*h.QLen*h.QDim]
		attention.CausalHead(qHead, k, v, h.QLen, cache.Len, h.QDim, h.Scale, outHead)
	}

	headOffset := s.PartID * localHq * h.QLen * h.QDim * 4
	outRegion := s.Region.Output()
	for i, v := range out {
		binary.LittleEndian.PutUint32(outRegion[headOffset+i*4:headOffset+i*4+4], math.Float32bits(v))
	}
	return nil
}

type serverInfo struct {
	PartID, PartCount, Threads int
}

func (s *Server) dispatchServerInfo() error {
	info := serverInfo{PartID: s.PartID, PartCount: s.PartCount, Threads: s.Threads}
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	copy(s.Region.Output(), b)
	return nil
}

func (s *Server) dispatchFindData() error {
	in := s.Region.Input()
	nameLen := binary.LittleEndian.Uint32(in[0:4])
	name := string(in[4 : 4+nameLen])
	out := s.Region.Output()
	if s.Weights.Has(name) {
		out[0] = 1
	} else {
		out[0] = 0
	}
	return nil
}

func (s *Server) dispatchStartLongData() error {
	in := s.Region.Input()
	chunkLen := int32(binary.LittleEndian.Uint32(in[0:4]))
	s.scratch = append(s.scratch, in[4:4+chunkLen]...)
	return nil
}

// weightRegisterConfig is the JSON descriptor a FinishLongData frame carries
// ahead of the raw tensor payload, per §4.3/§6.
type weightRegisterConfig struct {
	Op        string // "registerData" | "unregisterData"
	Name      string
	WeightType string
	DType      string
	K, M       int
	ElemSize   int
	GroupSize  int
	BiasLen    int
	GGUFKind   string
}

func (s *Server) dispatchFinishLongData() error {
	defer func() { s.scratch = nil }()
	buf := s.scratch
	if len(buf) < 4 {
		return fmt.Errorf("%w: FinishLongData scratch too short for a config header", errs.ErrConfiguration)
	}
	configLen := binary.LittleEndian.Uint32(buf[0:4])
	var cfg weightRegisterConfig
	if err := json.Unmarshal(buf[4:4+configLen], &cfg); err != nil {
		return fmt.Errorf("%w: parse weight register config: %v", errs.ErrConfiguration, err)
	}
	payload := buf[4+configLen:]

	switch cfg.Op {
	case "unregisterData":
		s.Weights.Unregister(cfg.Name)
		return nil
	case "registerData":
		return s.registerWeight(cfg, payload)
	default:
		return fmt.Errorf("%w: unknown long-data op %q", errs.ErrConfiguration, cfg.Op)
	}
}

func weightTypeFromString(s string) dtype.WeightType {
	switch s {
	case "linearSwiglu":
		return dtype.LinearSwiglu
	case "linearColumn":
		return dtype.LinearColumn
	default:
		return dtype.Linear
	}
}

func (s *Server) registerWeight(cfg weightRegisterConfig, payload []byte) error {
	wt := weightTypeFromString(cfg.WeightType)

	switch cfg.DType {
	case "F32":
		rowBytes := cfg.M * 4
		full := payload[:cfg.K*rowBytes]
		var bias []float32
		if cfg.BiasLen > 0 {
			bias = bytesToFloat32Slice(payload[cfg.K*rowBytes : cfg.K*rowBytes+cfg.BiasLen*4])
		}
		w, err := weights.RegisterDense(cfg.Name, wt, dtype.F32, cfg.K, cfg.M, full, 4, bias, s.PartID, s.PartCount)
		if err != nil {
			return err
		}
		s.Weights.Register(w)
		return nil

	case "INT8", "INT4NoZero", "INT4Group":
		groups := 1
		if cfg.GroupSize > 0 {
			groups = (cfg.M + cfg.GroupSize - 1) / cfg.GroupSize
		}
		codes := payload[:cfg.K*cfg.M]
		off := cfg.K * cfg.M
		if cfg.DType != "INT8" {
			// INT4 codes arrive two per byte, low nibble first.
			packedLen := (cfg.K*cfg.M + 1) / 2
			codes = quant.UnpackNibbles(payload[:packedLen], cfg.K*cfg.M)
			off = packedLen
		}
		mins := bytesToFloat32Slice(payload[off : off+cfg.K*groups*4])
		off += cfg.K * groups * 4
		scales := bytesToFloat32Slice(payload[off : off+cfg.K*groups*4])
		off += cfg.K * groups * 4
		var bias []float32
		if cfg.BiasLen > 0 {
			bias = bytesToFloat32Slice(payload[off : off+cfg.BiasLen*4])
		}
		dt := dtypeFromString(cfg.DType)
		w, err := weights.RegisterQuantized(cfg.Name, wt, dt, cfg.K, cfg.M, cfg.GroupSize, codes, mins, scales, bias, s.PartID, s.PartCount)
		if err != nil {
			return err
		}
		s.Weights.Register(w)
		return nil

	case "GGUF":
		blockBytesPerRow := len(payload) / cfg.K
		w := weights.RegisterGGUF(cfg.Name, cfg.GGUFKind, cfg.K, cfg.M, payload, blockBytesPerRow, s.PartID, s.PartCount)
		s.Weights.Register(w)
		return nil

	default:
		return fmt.Errorf("%w: unsupported dtype %q in weight register config", errs.ErrConfiguration, cfg.DType)
	}
}

func dtypeFromString(s string) dtype.DataType {
	switch s {
	case "INT8":
		return dtype.INT8
	case "INT4NoZero":
		return dtype.INT4NoZero
	case "INT4Group":
		return dtype.INT4Group
	default:
		return dtype.F32
	}
}
