package wgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Every program owns its own graph and tape machine, the same way as Generator/Discriminator/GAN graphs are separated in classic GAN training:
//
// inferenceProgram - generator only, no gradients. Used by Generate() and to produce detached samples for critic
// generatorProgram - generator + frozen copy of critic, gradients w.r.t. generator learnables only
// criticProgram - critic only; generated targets come in as plain input values, so nothing could flow back into generator
//
// Programs are compiled for a fixed batch size.

type inferenceProgram struct {
	batchSize int
	g         *gorgonia.ExprGraph
	x         *gorgonia.Node
	noise     *gorgonia.Node
	generator *BoundNetwork
	out       gorgonia.Value
	vm        gorgonia.VM
}

func newInferenceProgram(generator *Network, batchSize, xDim, zDim int) (*inferenceProgram, error) {
	g := gorgonia.NewGraph()
	prog := &inferenceProgram{
		batchSize: batchSize,
		g:         g,
		x:         gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, xDim), gorgonia.WithName("x")),
		noise:     gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, zDim), gorgonia.WithName("noise")),
	}
	bn, err := generator.Bind(g)
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind generator")
	}
	prog.generator = bn
	input, err := gorgonia.Concat(1, prog.x, prog.noise)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate features and noise")
	}
	trace, err := bn.Fwd(input, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generator")
	}
	gorgonia.Read(trace.Out, &prog.out)
	prog.vm = gorgonia.NewTapeMachine(g)
	return prog, nil
}

// run Returns [N, T] generated targets. Result doesn't share memory with the machine
func (p *inferenceProgram) run(x, noise *tensor.Dense) (*tensor.Dense, error) {
	p.vm.Reset()
	if err := p.generator.Refresh(); err != nil {
		return nil, err
	}
	if err := gorgonia.Let(p.x, x); err != nil {
		return nil, errors.Wrap(err, "Can't init features")
	}
	if err := gorgonia.Let(p.noise, noise); err != nil {
		return nil, errors.Wrap(err, "Can't init noise")
	}
	if err := p.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run inference VM")
	}
	out, ok := p.out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Generator output is %T, but *tensor.Dense expected", p.out)
	}
	generated := out.Clone().(*tensor.Dense)
	p.vm.Reset()
	return generated, nil
}

type generatorProgram struct {
	batchSize int
	g         *gorgonia.ExprGraph
	x         *gorgonia.Node
	noise     *gorgonia.Node
	generator *BoundNetwork
	critic    *BoundNetwork
	lossVal   gorgonia.Value
	vm        gorgonia.VM
}

func newGeneratorProgram(generator, critic *Network, batchSize, xDim, zDim int) (*generatorProgram, error) {
	g := gorgonia.NewGraph()
	prog := &generatorProgram{
		batchSize: batchSize,
		g:         g,
		x:         gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, xDim), gorgonia.WithName("x")),
		noise:     gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, zDim), gorgonia.WithName("noise")),
	}
	gen, err := generator.Bind(g)
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind generator")
	}
	// Critic's learnables are bound as plain inputs: they are neither differentiated nor passed to solver
	frozen, err := critic.Bind(g)
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind critic")
	}
	prog.generator, prog.critic = gen, frozen

	input, err := gorgonia.Concat(1, prog.x, prog.noise)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate features and noise")
	}
	genTrace, err := gen.Fwd(input, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generator")
	}
	generated, err := placeColumns(g, genTrace.Out, prog.x)
	if err != nil {
		return nil, errors.Wrap(err, "Can't place generated targets and features side by side")
	}
	scoreTrace, err := frozen.Fwd(generated, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward critic")
	}
	loss, err := WassersteinGeneratorLoss(scoreTrace.Out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define generator loss")
	}
	gorgonia.WithName("generator_loss")(loss)
	if _, err = gorgonia.Grad(loss, gen.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "Can't define gradients of generator")
	}
	gorgonia.Read(loss, &prog.lossVal)
	prog.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(gen.Learnables()...))
	return prog, nil
}

// placeColumns Builds [N, T+F] matrix [targets, features] as targets*Sy + features*Sx, where Sy and Sx are constant selection matrices.
// Concat is avoided since its gradient for a single column piece comes back as vector [N] instead of [N, 1]
func placeColumns(g *gorgonia.ExprGraph, targets, features *gorgonia.Node) (*gorgonia.Node, error) {
	tDim, fDim := targets.Shape()[1], features.Shape()[1]
	width := tDim + fDim
	sy := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(tDim, width), gorgonia.WithName("target_selector"), gorgonia.WithValue(selectionMatrix(tDim, width, 0)))
	sx := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(fDim, width), gorgonia.WithName("feature_selector"), gorgonia.WithValue(selectionMatrix(fDim, width, tDim)))
	placedTargets, err := gorgonia.Mul(targets, sy)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (targets*Sy)")
	}
	placedFeatures, err := gorgonia.Mul(features, sx)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (features*Sx)")
	}
	return gorgonia.Add(placedTargets, placedFeatures)
}

// selectionMatrix [rows, cols] matrix with ones at (i, offset+i)
func selectionMatrix(rows, cols, offset int) *tensor.Dense {
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		data[i*cols+offset+i] = 1
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))
}

// run Does forward and backward passes. Gradients of previous run are discarded, new ones are left in generator's dual values until optimizer step
func (p *generatorProgram) run(x, noise *tensor.Dense) (GeneratorLosses, error) {
	p.vm.Reset()
	p.generator.zeroGrad()
	if err := p.generator.Refresh(); err != nil {
		return GeneratorLosses{}, err
	}
	if err := p.critic.Refresh(); err != nil {
		return GeneratorLosses{}, err
	}
	if err := gorgonia.Let(p.x, x); err != nil {
		return GeneratorLosses{}, errors.Wrap(err, "Can't init features")
	}
	if err := gorgonia.Let(p.noise, noise); err != nil {
		return GeneratorLosses{}, errors.Wrap(err, "Can't init noise")
	}
	if err := p.vm.RunAll(); err != nil {
		return GeneratorLosses{}, errors.Wrap(err, "Can't run generator VM")
	}
	loss, err := scalarValue(p.lossVal)
	if err != nil {
		return GeneratorLosses{}, errors.Wrap(err, "Can't read generator loss")
	}
	p.generator.net.grads = p.generator
	return GeneratorLosses{Loss: loss}, nil
}

type criticProgram struct {
	batchSize int
	g         *gorgonia.ExprGraph
	x         *gorgonia.Node
	y         *gorgonia.Node
	fake      *gorgonia.Node
	epsilon   *gorgonia.Node
	critic    *BoundNetwork

	lossVal     gorgonia.Value
	distanceVal gorgonia.Value
	fakeMeanVal gorgonia.Value
	realMeanVal gorgonia.Value
	penaltyVal  gorgonia.Value

	vm gorgonia.VM
}

func newCriticProgram(critic *Network, batchSize, xDim, yDim int, penaltyCoefficient float64) (*criticProgram, error) {
	g := gorgonia.NewGraph()
	prog := &criticProgram{
		batchSize: batchSize,
		g:         g,
		x:         gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, xDim), gorgonia.WithName("x")),
		y:         gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, yDim), gorgonia.WithName("y")),
		fake:      gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, yDim), gorgonia.WithName("generated_detached")),
		epsilon:   gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(batchSize, yDim+xDim), gorgonia.WithName("epsilon")),
	}
	bn, err := critic.Bind(g)
	if err != nil {
		return nil, errors.Wrap(err, "Can't bind critic")
	}
	prog.critic = bn

	realSample, err := gorgonia.Concat(1, prog.y, prog.x)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate real targets and features")
	}
	fakeSample, err := gorgonia.Concat(1, prog.fake, prog.x)
	if err != nil {
		return nil, errors.Wrap(err, "Can't concatenate generated targets and features")
	}
	fakeTrace, err := bn.Fwd(fakeSample, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward generated samples through critic")
	}
	realTrace, err := bn.Fwd(realSample, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward real samples through critic")
	}
	terms, err := WassersteinCriticTerms(fakeTrace.Out, realTrace.Out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define Wasserstein term")
	}
	penalty, err := GradientPenalty(bn, realSample, fakeSample, prog.epsilon, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't define gradient penalty")
	}
	coefficient := gorgonia.NewScalar(g, gorgonia.Float64, gorgonia.WithName("gradient_penalty_coefficient"), gorgonia.WithValue(penaltyCoefficient))
	weighted, err := gorgonia.Mul(coefficient, penalty)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (lambda*gp)")
	}
	loss, err := gorgonia.Add(terms.Distance, weighted)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (w+lambda*gp)")
	}
	gorgonia.WithName("critic_loss")(loss)
	if _, err = gorgonia.Grad(loss, bn.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "Can't define gradients of critic")
	}
	gorgonia.Read(loss, &prog.lossVal)
	gorgonia.Read(terms.Distance, &prog.distanceVal)
	gorgonia.Read(terms.FakeMean, &prog.fakeMeanVal)
	gorgonia.Read(terms.RealMean, &prog.realMeanVal)
	gorgonia.Read(penalty, &prog.penaltyVal)
	prog.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(bn.Learnables()...))
	return prog, nil
}

// run Does forward and backward passes. Gradients of previous run are discarded, new ones are left in critic's dual values until optimizer step
//
// fake - [N, T] generator output, already computed and detached
// epsilon - [N, T+F] interpolation coefficients
//
func (p *criticProgram) run(x, y, fake, epsilon *tensor.Dense) (CriticLosses, error) {
	p.vm.Reset()
	p.critic.zeroGrad()
	if err := p.critic.Refresh(); err != nil {
		return CriticLosses{}, err
	}
	inputs := []struct {
		node  *gorgonia.Node
		value *tensor.Dense
	}{{p.x, x}, {p.y, y}, {p.fake, fake}, {p.epsilon, epsilon}}
	for _, in := range inputs {
		if err := gorgonia.Let(in.node, in.value); err != nil {
			return CriticLosses{}, errors.Wrap(err, fmt.Sprintf("Can't init '%s'", in.node.Name()))
		}
	}
	if err := p.vm.RunAll(); err != nil {
		return CriticLosses{}, errors.Wrap(err, "Can't run critic VM")
	}
	var (
		losses CriticLosses
		err    error
	)
	values := []struct {
		dst *float64
		src gorgonia.Value
	}{
		{&losses.Loss, p.lossVal},
		{&losses.Wasserstein, p.distanceVal},
		{&losses.FakePred, p.fakeMeanVal},
		{&losses.RealPred, p.realMeanVal},
		{&losses.GradientPenalty, p.penaltyVal},
	}
	for _, v := range values {
		if *v.dst, err = scalarValue(v.src); err != nil {
			return CriticLosses{}, errors.Wrap(err, "Can't read critic outputs")
		}
	}
	p.critic.net.grads = p.critic
	return losses, nil
}

// scalarValue Extracts float64 from scalar value (or single-element tensor)
func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("Value has not been computed")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case []float64:
		if len(data) == 1 {
			return data[0], nil
		}
		return 0, fmt.Errorf("Value has %d elements, but scalar expected", len(data))
	default:
		return 0, fmt.Errorf("Value of type %T is not float64", data)
	}
}
