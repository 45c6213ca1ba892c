package entity

// Input geometry expected by the classifier.
const (
	TensorChannels = 3
	TensorHeight   = 224
	TensorWidth    = 224
	TensorSize     = TensorChannels * TensorHeight * TensorWidth
)

// Tensor is one normalized RGB frame stored planar (channel, row, column),
// the layout the classifier consumes as a 1x3x224x224 batch.
type Tensor struct {
	Data []float32
}

func NewTensor() *Tensor {
	return &Tensor{Data: make([]float32, TensorSize)}
}

func (t *Tensor) Shape() []int {
	return []int{1, TensorChannels, TensorHeight, TensorWidth}
}

func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*TensorHeight+y)*TensorWidth+x]
}

func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*TensorHeight+y)*TensorWidth+x] = v
}
