package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"drivenet/internal/model"
)

var (
	ErrInputSize        = errors.New("input vector size mismatch")
	ErrShapeMismatch    = errors.New("layer shape mismatch")
	ErrMutationStrength = errors.New("mutation strength must be within [0, 1]")
)

// Layer is a dense fully connected layer. Weights is inputs×outputs, so an
// output neuron's weights form one column.
type Layer struct {
	Weights    *mat.Dense
	Biases     *mat.VecDense
	Activation string

	act ActivationFunc
}

// Network is a fixed-topology feedforward stack. Its shape never changes
// after construction; only weights and biases are mutated.
type Network struct {
	Layers []*Layer
}

// New builds a network with one layer per consecutive pair of neuron counts,
// drawing every weight and bias uniformly from [-1, 1].
func New(rng *rand.Rand, activation string, counts ...int) (*Network, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if len(counts) < 2 {
		return nil, fmt.Errorf("%w: need at least input and output counts, got %v", ErrShapeMismatch, counts)
	}
	for _, c := range counts {
		if c <= 0 {
			return nil, fmt.Errorf("%w: neuron counts must be > 0, got %v", ErrShapeMismatch, counts)
		}
	}
	if activation == "" {
		activation = DefaultActivation
	}
	act, err := GetActivation(activation)
	if err != nil {
		return nil, err
	}

	layers := make([]*Layer, 0, len(counts)-1)
	for i := 0; i+1 < len(counts); i++ {
		in, out := counts[i], counts[i+1]
		weights := make([]float64, in*out)
		for k := range weights {
			weights[k] = uniform(rng)
		}
		biases := make([]float64, out)
		for k := range biases {
			biases[k] = uniform(rng)
		}
		layers = append(layers, &Layer{
			Weights:    mat.NewDense(in, out, weights),
			Biases:     mat.NewVecDense(out, biases),
			Activation: activation,
			act:        act,
		})
	}
	return &Network{Layers: layers}, nil
}

func uniform(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

func (l *Layer) InputCount() int {
	r, _ := l.Weights.Dims()
	return r
}

func (l *Layer) OutputCount() int {
	_, c := l.Weights.Dims()
	return c
}

func (l *Layer) forward(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(l.OutputCount(), nil)
	out.MulVec(l.Weights.T(), x)
	out.AddVec(out, l.Biases)
	for i := 0; i < out.Len(); i++ {
		out.SetVec(i, l.act(out.AtVec(i)))
	}
	return out
}

func (n *Network) InputCount() int {
	return n.Layers[0].InputCount()
}

func (n *Network) OutputCount() int {
	return n.Layers[len(n.Layers)-1].OutputCount()
}

// Counts returns the neuron count of every level, inputs first.
func (n *Network) Counts() []int {
	counts := make([]int, 0, len(n.Layers)+1)
	counts = append(counts, n.InputCount())
	for _, l := range n.Layers {
		counts = append(counts, l.OutputCount())
	}
	return counts
}

// Forward feeds inputs through every layer. A wrong-length input is
// rejected rather than padded or truncated.
func (n *Network) Forward(inputs []float64) ([]float64, error) {
	if len(inputs) != n.InputCount() {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInputSize, len(inputs), n.InputCount())
	}
	x := mat.NewVecDense(len(inputs), append([]float64(nil), inputs...))
	for _, l := range n.Layers {
		x = l.forward(x)
	}
	return append([]float64(nil), x.RawVector().Data...), nil
}

// Mutate moves every weight and bias toward a fresh uniform draw in [-1, 1]
// by amount. Zero leaves the network untouched; one replaces every value.
func (n *Network) Mutate(rng *rand.Rand, amount float64) error {
	if amount < 0 || amount > 1 {
		return fmt.Errorf("%w: %f", ErrMutationStrength, amount)
	}
	if rng == nil {
		return errors.New("random source is required")
	}
	for _, l := range n.Layers {
		for i := 0; i < l.Biases.Len(); i++ {
			l.Biases.SetVec(i, lerp(l.Biases.AtVec(i), uniform(rng), amount))
		}
		rows, cols := l.Weights.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				l.Weights.Set(i, j, lerp(l.Weights.At(i, j), uniform(rng), amount))
			}
		}
	}
	return nil
}

// lerp is written so t=0 and t=1 return a and b exactly.
func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func (n *Network) Clone() *Network {
	layers := make([]*Layer, len(n.Layers))
	for i, l := range n.Layers {
		layers[i] = &Layer{
			Weights:    mat.DenseCopyOf(l.Weights),
			Biases:     mat.VecDenseCopyOf(l.Biases),
			Activation: l.Activation,
			act:        l.act,
		}
	}
	return &Network{Layers: layers}
}

// Snapshot exports the network as plain nested slices.
func (n *Network) Snapshot() model.Network {
	out := model.Network{Layers: make([]model.Layer, len(n.Layers))}
	for li, l := range n.Layers {
		rows, cols := l.Weights.Dims()
		weights := make([][]float64, rows)
		for i := range weights {
			weights[i] = make([]float64, cols)
			mat.Row(weights[i], i, l.Weights)
		}
		out.Layers[li] = model.Layer{
			Weights:    weights,
			Biases:     append([]float64(nil), l.Biases.RawVector().Data...),
			Activation: l.Activation,
		}
	}
	return out
}

// FromSnapshot rebuilds a network, rejecting ragged matrices and layers
// whose sizes do not chain.
func FromSnapshot(snapshot model.Network) (*Network, error) {
	if len(snapshot.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShapeMismatch)
	}
	layers := make([]*Layer, 0, len(snapshot.Layers))
	for li, sl := range snapshot.Layers {
		rows := len(sl.Weights)
		if rows == 0 || len(sl.Weights[0]) == 0 {
			return nil, fmt.Errorf("%w: layer %d is empty", ErrShapeMismatch, li)
		}
		cols := len(sl.Weights[0])
		data := make([]float64, 0, rows*cols)
		for i, row := range sl.Weights {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: layer %d row %d has %d columns, want %d", ErrShapeMismatch, li, i, len(row), cols)
			}
			data = append(data, row...)
		}
		if len(sl.Biases) != cols {
			return nil, fmt.Errorf("%w: layer %d has %d biases for %d outputs", ErrShapeMismatch, li, len(sl.Biases), cols)
		}
		if li > 0 && layers[li-1].OutputCount() != rows {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous layer emits %d", ErrShapeMismatch, li, rows, layers[li-1].OutputCount())
		}

		activation := sl.Activation
		if activation == "" {
			activation = DefaultActivation
		}
		act, err := GetActivation(activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", li, err)
		}
		layers = append(layers, &Layer{
			Weights:    mat.NewDense(rows, cols, data),
			Biases:     mat.NewVecDense(cols, append([]float64(nil), sl.Biases...)),
			Activation: activation,
			act:        act,
		})
	}
	return &Network{Layers: layers}, nil
}
