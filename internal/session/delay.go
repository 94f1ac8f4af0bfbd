package session

// DelayLine 固定长度的本地输入延迟队列
//
// 初始填充空输入，每次 Push 放入最新采样并返回 delay 帧之前的采样。
type DelayLine struct {
	buf  []byte
	head int
}

// NewDelayLine 创建延迟为 delay 帧的队列，delay 为 0 时原样返回
func NewDelayLine(delay int) *DelayLine {
	return &DelayLine{buf: make([]byte, max(delay, 0))}
}

// Push 放入本帧采样，返回本帧应提交的输入
func (d *DelayLine) Push(b byte) byte {
	if len(d.buf) == 0 {
		return b
	}
	out := d.buf[d.head]
	d.buf[d.head] = b
	d.head = (d.head + 1) % len(d.buf)
	return out
}

// Len 延迟帧数
func (d *DelayLine) Len() int {
	return len(d.buf)
}
