// Wire format for coordinator directives, relayed fragments and acknowledgements
package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Classifies the directive by its sentinel fields
func (directive Directive) Kind() (kind Kind) {
	switch {
	case directive.Size != 0:
		kind = KindTask
	case directive.PieceSize == 0:
		kind = KindShutdown
	default:
		kind = KindBandwidth
	}
	return
}

// Bandwidth directive asking the node to re-read its profile from the start
func (directive Directive) IsProfileReload() (reload bool) {
	reload = directive.Kind() == KindBandwidth && directive.Offset > 0
	return
}

// Bandwidth directive marking the receiving node as the replacement node
func (directive Directive) IsReplacement() (replaced bool) {
	replaced = directive.Bandwidth == 0
	return
}

// Number of fragments the directive's range splits into
func (directive Directive) PieceCount() (count int64) {
	if directive.PieceSize <= 0 || directive.Size <= 0 {
		return
	}
	count = (directive.Size + directive.PieceSize - 1) / directive.PieceSize
	return
}

// Checks a task directive for values that would break accounting
func (directive Directive) Validate() (err error) {
	if directive.Kind() != KindTask {
		return
	}
	if directive.Size < 0 {
		err = fmt.Errorf("task %d: negative size %d", directive.TaskID, directive.Size)
		return
	}
	if directive.PieceSize <= 0 {
		err = fmt.Errorf("task %d: piece size must be positive, got %d", directive.TaskID, directive.PieceSize)
		return
	}
	if directive.Offset < 0 {
		err = fmt.Errorf("task %d: negative offset %d", directive.TaskID, directive.Offset)
		return
	}
	if directive.SrcNum < 0 {
		err = fmt.Errorf("task %d: negative source count %d", directive.TaskID, directive.SrcNum)
		return
	}
	if directive.Coef < minCoef || directive.Coef > maxCoef {
		err = fmt.Errorf("task %d: coefficient %d outside GF(2^8)", directive.TaskID, directive.Coef)
		return
	}
	return
}

func Shutdown() (directive Directive) {
	return
}

func ReloadProfile() (directive Directive) {
	directive = Directive{Offset: 1, PieceSize: 1}
	return
}

// Asks the node to load the next profile entry, replaced selects the replacement column
func NextBandwidth(replaced bool) (directive Directive) {
	directive = Directive{PieceSize: 1, Bandwidth: 1}
	if replaced {
		directive.Bandwidth = 0
	}
	return
}

// Serializes fields in wire order
func (directive Directive) Marshal() (record []byte) {
	record = make([]byte, LenDirective)
	fields := [directiveFieldCount]int64{
		directive.TaskID,
		directive.SrcNum,
		directive.TarID,
		directive.Offset,
		directive.Size,
		directive.PieceSize,
		directive.Coef,
		directive.Bandwidth,
	}
	for i, field := range fields {
		binary.LittleEndian.PutUint64(record[i*lenField:], uint64(field))
	}
	return
}

func UnmarshalDirective(record []byte) (directive Directive, err error) {
	if len(record) != LenDirective {
		err = fmt.Errorf("invalid directive length: expected %d bytes, got %d", LenDirective, len(record))
		return
	}

	field := func(i int) int64 {
		return int64(binary.LittleEndian.Uint64(record[i*lenField:]))
	}
	directive = Directive{
		TaskID:    field(0),
		SrcNum:    field(1),
		TarID:     field(2),
		Offset:    field(3),
		Size:      field(4),
		PieceSize: field(5),
		Coef:      field(6),
		Bandwidth: field(7),
	}
	return
}

func SendDirective(link Sender, nodeID int64, directive Directive) (err error) {
	err = link.Send(nodeID, directive.Marshal())
	if err != nil {
		err = fmt.Errorf("failed sending directive to node %d: %w", nodeID, err)
	}
	return
}

func ReceiveDirective(ctx context.Context, link Receiver, nodeID int64) (directive Directive, err error) {
	record := make([]byte, LenDirective)
	err = link.Receive(ctx, nodeID, record)
	if err != nil {
		err = fmt.Errorf("failed receiving directive from node %d: %w", nodeID, err)
		return
	}
	directive, err = UnmarshalDirective(record)
	return
}
