// Package kinds provides the built-in task kinds.
package kinds

import (
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/task"
)

// Class IDs of the built-in kinds.
const (
	ClassScan   = "scan"
	ClassHold   = "hold"
	ClassKeypad = "keypad"
)

// Register adds every built-in kind to r.
func Register(r *task.Registry, log *logging.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	log = log.WithComponent("kinds")

	factories := map[string]task.Factory{
		ClassScan:   NewScan,
		ClassHold: func(d task.Descriptor) (task.Behavior, error) {
			h, err := NewHold(d, log)
			if err != nil {
				return nil, err
			}
			return h, nil
		},
		ClassKeypad: func(d task.Descriptor) (task.Behavior, error) {
			k, err := NewKeypad(d, log)
			if err != nil {
				return nil, err
			}
			return k, nil
		},
	}
	for _, class := range []string{ClassScan, ClassHold, ClassKeypad} {
		if err := r.Register(class, factories[class]); err != nil {
			return err
		}
	}
	return nil
}

// NewScan builds a scan task: the player walks to a physical station and
// scans it. There is nothing to drive on the device.
func NewScan(task.Descriptor) (task.Behavior, error) {
	return task.Passive{}, nil
}
