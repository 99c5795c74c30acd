// Package client implements NumaClient (§4.8): the inference-thread-side
// counterpart to the worker pool. It serializes request frames into the
// mailbox, posts a task to every worker, spins until all have finished, and
// reduces their partial outputs into one tensor.
package client

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/fastllm-numa/numacore/dtype"
	"github.com/fastllm-numa/numacore/errs"
	"github.com/fastllm-numa/numacore/quant"
	"github.com/fastllm-numa/numacore/shm"
)

// ShardKind tells the client how to reduce per-worker output bands.
type ShardKind int

const (
	RowSharded ShardKind = iota
	ColumnSharded
)

// Client is the inference thread's mailbox handle.
type Client struct {
	Region    *shm.Region
	PartCount int
}

// New wraps an already-mapped mailbox region for PartCount workers.
func New(region *shm.Region, partCount int) *Client {
	return &Client{Region: region, PartCount: partCount}
}

// PostAll writes task into every worker's flag page, the store-fence/flag-
// write step of §4.1's post().
func (c *Client) PostAll(task shm.TaskCode) {
	for i := 0; i < c.PartCount; i++ {
		c.Region.SetTask(i, task)
	}
}

// WaitAll spins until every worker's flag has returned to TaskNone.
func (c *Client) WaitAll() {
	for i := 0; i < c.PartCount; i++ {
		for c.Region.PollTask(i) != shm.TaskNone {
		}
	}
}

func putI32(b []byte, i int, v int32) {
	binary.LittleEndian.PutUint32(b[i*4:i*4+4], uint32(v))
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func floatsToBytes(dst []byte, vs []float32) {
	for i, v := range vs {
		putF32(dst[i*4:i*4+4], v)
	}
}

// BuildLinearFrame serializes the §6 Linear request frame: the int32[10]
// header, the per-row LowBitConfig tuples (one (min, scale) pair per
// activation row, independent of the weight's own group/groupCnt), the
// weight/bias names, and the (already quantized or raw float) input payload.
func BuildLinearFrame(n, m, k, group, groupCnt int, weightName, biasName string, exType, outDtype int32, configs []quant.LowBitConfig, inputPayload []byte) []byte {
	headerLen := 40
	configsLen := len(configs) * 8
	total := headerLen + configsLen + len(weightName) + len(biasName) + len(inputPayload)
	buf := make([]byte, total)

	putI32(buf, 0, int32(n))
	putI32(buf, 1, int32(m))
	putI32(buf, 2, int32(k))
	putI32(buf, 3, int32(group))
	putI32(buf, 4, int32(groupCnt))
	putI32(buf, 5, int32(len(weightName)))
	putI32(buf, 6, int32(len(biasName)))
	putI32(buf, 7, exType)
	putI32(buf, 8, outDtype)

	off := headerLen
	for _, cfg := range configs {
		putF32(buf[off:off+4], cfg.Min)
		putF32(buf[off+4:off+8], cfg.Scale)
		off += 8
	}
	off += copy(buf[off:], weightName)
	off += copy(buf[off:], biasName)
	copy(buf[off:], inputPayload)
	return buf
}

// QuantizeActivation online-quantizes an [n, m] float32 activation to
// per-row uint8 codes, returning the codes and the per-row LowBitConfig
// used (the int-weight linear path of §4.8).
func QuantizeActivation(input []float32, n, m int) ([]byte, []quant.LowBitConfig) {
	codes := make([]byte, n*m)
	configs := make([]quant.LowBitConfig, n)
	for row := 0; row < n; row++ {
		rowCodes := make([]uint8, m)
		cfg, _ := quant.QuantizeUint8Row(input[row*m:(row+1)*m], rowCodes)
		copy(codes[row*m:(row+1)*m], rowCodes)
		configs[row] = cfg
	}
	return codes, configs
}

// RunLinear issues a linear op against weightName, quantizing the
// activation first when quantizeInput is true, and reduces the worker
// output bands per shardKind.
func (c *Client) RunLinear(input []float32, n, m, k, group, groupCnt int, weightName, biasName string, exType int32, quantizeInput bool, shardKind ShardKind) ([]float32, error) {
	var payload []byte
	var configs []quant.LowBitConfig
	task := shm.TaskLinearFloat
	if quantizeInput {
		payload, configs = QuantizeActivation(input, n, m)
		task = shm.TaskLinearInt
	} else {
		payload = make([]byte, n*m*4)
		floatsToBytes(payload, input)
	}

	frame := BuildLinearFrame(n, m, k, group, groupCnt, weightName, biasName, exType, int32(dtype.F32), configs, payload)
	copy(c.Region.Input(), frame)

	c.PostAll(task)
	c.WaitAll()

	return c.reduceLinearOutput(n, k, shardKind)
}

func (c *Client) reduceLinearOutput(n, k int, shardKind ShardKind) ([]float32, error) {
	out := c.Region.Output()
	switch shardKind {
	case RowSharded:
		result := make([]float32, n*k)
		base := k / c.PartCount
		for p := 0; p < c.PartCount; p++ {
			localK := base
			if p == c.PartCount-1 {
				localK = k - base*(c.PartCount-1)
			}
			colStart := p * base
			bandOffset := p * n * k * 4
			for row := 0; row < n; row++ {
				rowOff := bandOffset + row*localK*4
				for j := 0; j < localK; j++ {
					result[row*k+colStart+j] = math.Float32frombits(binary.LittleEndian.Uint32(out[rowOff+j*4 : rowOff+j*4+4]))
				}
			}
		}
		return result, nil

	case ColumnSharded:
		result := make([]float32, n*k)
		for p := 0; p < c.PartCount; p++ {
			bandOffset := p * n * k * 4
			for i := range result {
				result[i] += math.Float32frombits(binary.LittleEndian.Uint32(out[bandOffset+i*4 : bandOffset+i*4+4]))
			}
		}
		return result, nil

	default:
		return nil, fmt.Errorf("%w: unknown shard kind %d", errs.ErrConfiguration, shardKind)
	}
}

// KVAppend issues an AppendKVCache op for a [heads, newLen, dim] fresh
// tensor, per §4.7/§6. It records no local copy of the appended data: only
// the workers hold it.
func (c *Client) KVAppend(uid uint64, heads, newLen, dim int, fresh []float32) {
	in := c.Region.Input()
	binary.LittleEndian.PutUint64(in[0:8], uid)
	binary.LittleEndian.PutUint32(in[8:12], 3)
	binary.LittleEndian.PutUint32(in[12:16], uint32(heads))
	binary.LittleEndian.PutUint32(in[16:20], uint32(newLen))
	binary.LittleEndian.PutUint32(in[20:24], uint32(dim))
	off := 28
	floatsToBytes(in[off:off+len(fresh)*4], fresh)

	c.PostAll(shm.TaskAppendKVCache)
	c.WaitAll()
}

// AttentionRequest is the client-side counterpart of §6's attention JSON
// header.
type AttentionRequest struct {
	KID, VID int64
	QHead    int
	QLen     int
	QDim     int
	Group    int
	Scale    float32
	MaskType string
}

// Attention issues a DoAttention op and concatenates every worker's head
// slice into one [QHead, QLen, QDim] output, per §4.6/§4.8.
func (c *Client) Attention(req AttentionRequest, q []float32) ([]float32, error) {
	header, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	in := c.Region.Input()
	binary.LittleEndian.PutUint32(in[0:4], uint32(len(header)))
	off := 4 + copy(in[4:], header)
	floatsToBytes(in[off:off+len(q)*4], q)

	c.PostAll(shm.TaskDoAttention)
	c.WaitAll()

	localHq := req.QHead / c.PartCount
	bandSize := localHq * req.QLen * req.QDim
	out := c.Region.Output()
	result := make([]float32, req.QHead*req.QLen*req.QDim)
	for p := 0; p < c.PartCount; p++ {
		bandOffset := p * bandSize * 4
		for i := 0; i < bandSize; i++ {
			result[p*bandSize+i] = math.Float32frombits(binary.LittleEndian.Uint32(out[bandOffset+i*4 : bandOffset+i*4+4]))
		}
	}
	return result, nil
}
