package action

import (
	"math"

	"github.com/code-payments/chain-fuzzer/pkg/chain"
	"github.com/code-payments/chain-fuzzer/pkg/state"
)

type TransferParams struct {
	Sender  chain.Address
	Inputs  []*state.Utxo
	Outputs []chain.AssetOutput
}

// Transfer consumes a set of utxos and produces new outputs, preserving the
// total quantity of every asset type.
type Transfer struct {
	sender  chain.Address
	inputs  []chain.AssetOutPoint
	outputs []chain.AssetOutput
}

// NewTransfer validates the params and builds a Transfer.
func NewTransfer(params TransferParams) (*Transfer, error) {
	kind := chain.KindTransferAsset

	if err := params.Sender.Validate(); err != nil {
		return nil, newValidationError(kind, "invalid sender: %s", err.Error())
	}
	if len(params.Inputs) == 0 {
		return nil, newValidationError(kind, "no inputs")
	}
	if len(params.Outputs) == 0 {
		return nil, newValidationError(kind, "no outputs")
	}

	type key struct {
		txHash chain.Hash
		index  uint32
	}

	seen := make(map[key]struct{})
	inputTotals := make(map[chain.AssetType]chain.Quantity)
	inputs := make([]chain.AssetOutPoint, 0, len(params.Inputs))
	for _, input := range params.Inputs {
		if input.Owner != params.Sender {
			return nil, newValidationError(kind, "input %s:%d is owned by %s, not the sender", input.TxHash, input.Index, input.Owner)
		}

		k := key{input.TxHash, input.Index}
		if _, ok := seen[k]; ok {
			return nil, newValidationError(kind, "input %s:%d is spent twice", input.TxHash, input.Index)
		}
		seen[k] = struct{}{}

		if inputTotals[input.AssetType] > math.MaxUint64-input.Quantity {
			return nil, newValidationError(kind, "%s inputs total overflows", input.AssetType)
		}
		inputTotals[input.AssetType] += input.Quantity
		inputs = append(inputs, input.OutPoint())
	}

	outputTotals := make(map[chain.AssetType]chain.Quantity)
	outputs := make([]chain.AssetOutput, 0, len(params.Outputs))
	for _, output := range params.Outputs {
		if err := output.Receiver.Validate(); err != nil {
			return nil, newValidationError(kind, "invalid receiver: %s", err.Error())
		}
		if output.Quantity == 0 {
			return nil, newValidationError(kind, "output to %s has zero quantity", output.Receiver)
		}
		if _, ok := inputTotals[output.AssetType]; !ok {
			return nil, newValidationError(kind, "output asset type %s is not spent by any input", output.AssetType)
		}

		if outputTotals[output.AssetType] > math.MaxUint64-output.Quantity {
			return nil, newValidationError(kind, "%s outputs total overflows", output.AssetType)
		}
		outputTotals[output.AssetType] += output.Quantity
		outputs = append(outputs, output)
	}

	for assetType, inputTotal := range inputTotals {
		if outputTotals[assetType] != inputTotal {
			return nil, newValidationError(kind, "%s inputs total %d but outputs total %d", assetType, inputTotal, outputTotals[assetType])
		}
	}

	return &Transfer{
		sender:  params.Sender,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// Give splits utxo into quantity for receiver and the change back to its
// owner. The change output is omitted when nothing is left over.
func Give(utxo *state.Utxo, receiver chain.Address, quantity chain.Quantity) ([]chain.AssetOutput, error) {
	if quantity == 0 {
		return nil, newValidationError(chain.KindTransferAsset, "cannot give a zero quantity")
	}
	if quantity > utxo.Quantity {
		return nil, newValidationError(chain.KindTransferAsset, "cannot give %d from a utxo holding %d", quantity, utxo.Quantity)
	}

	var outputs []chain.AssetOutput
	if change := utxo.Quantity - quantity; change > 0 {
		outputs = append(outputs, chain.AssetOutput{
			Receiver:  utxo.Owner,
			AssetType: utxo.AssetType,
			Quantity:  change,
		})
	}
	return append(outputs, chain.AssetOutput{
		Receiver:  receiver,
		AssetType: utxo.AssetType,
		Quantity:  quantity,
	}), nil
}

func (a *Transfer) Kind() chain.Kind {
	return chain.KindTransferAsset
}

func (a *Transfer) Sender() chain.Address {
	return a.sender
}

func (a *Transfer) Inputs() []chain.AssetOutPoint {
	return append([]chain.AssetOutPoint(nil), a.inputs...)
}

func (a *Transfer) Outputs() []chain.AssetOutput {
	return append([]chain.AssetOutput(nil), a.outputs...)
}

func (a *Transfer) Transaction() *chain.Transaction {
	return chain.NewTransferAssetTransaction(a.sender, a.Inputs(), a.Outputs())
}

func (a *Transfer) Apply(s *state.State, txHash chain.Hash) {
	s.ApplyTransfer(txHash, a.inputs, a.outputs)
}
