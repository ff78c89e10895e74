package bufpool

// Valid bytes of the buffer
func (buf *Buffer) Bytes() (data []byte) {
	data = buf.data[:buf.n]
	return
}

func (buf *Buffer) Len() (n int) {
	n = buf.n
	return
}

func (buf *Buffer) Cap() (n int) {
	n = cap(buf.data)
	return
}

// Changes the valid length within capacity
func (buf *Buffer) Resize(n int) {
	if n > cap(buf.data) {
		n = cap(buf.data)
	}
	buf.n = n
}

// Exchanges the memory behind two handles. Both handles stay owned by their holders.
func (buf *Buffer) Swap(other *Buffer) {
	buf.data, other.data = other.data, buf.data
	buf.n, other.n = other.n, buf.n
	buf.key, other.key = other.key, buf.key
}
