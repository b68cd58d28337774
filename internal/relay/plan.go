package relay

import (
	"fmt"
	"slices"
)

// Build groups specs by Order and returns the groups in ascending order.
//
// Within a group, channels keep the order they were given in. Build is pure:
// it never touches hardware.
//
// Returns:
//   - Plan: groups sorted ascending by Order
//   - error: ErrEmptyPlan for zero specs, ErrDuplicateChannel when a group
//     names the same channel twice, ErrInvalidPlan for a negative duration
//
// Example:
//
//	specs: [A(order=2), B(order=0), C(order=2)]
//	plan:  [[B], [A, C]]
func Build(specs []ChannelSpec) (Plan, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyPlan
	}

	byOrder := make(map[int]*Group)
	var orders []int

	for _, spec := range specs {
		if spec.Duration < 0 {
			return nil, fmt.Errorf("%w: channel %d has negative duration", ErrInvalidPlan, spec.Channel)
		}

		group, ok := byOrder[spec.Order]
		if !ok {
			group = &Group{Order: spec.Order}
			byOrder[spec.Order] = group
			orders = append(orders, spec.Order)
		}

		for _, existing := range group.Channels {
			if existing.Channel == spec.Channel {
				return nil, fmt.Errorf("%w: channel %d appears twice in group %d",
					ErrDuplicateChannel, spec.Channel, spec.Order)
			}
		}
		group.Channels = append(group.Channels, spec)
	}

	slices.Sort(orders)

	plan := make(Plan, 0, len(orders))
	for _, order := range orders {
		plan = append(plan, *byOrder[order])
	}
	return plan, nil
}

// Validate checks a plan that did not come from Build.
// Groups must be non-empty, strictly ascending, free of duplicate channels,
// and every duration must be non-negative.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPlan
	}

	for i, group := range p {
		if len(group.Channels) == 0 {
			return fmt.Errorf("%w: group %d has no channels", ErrInvalidPlan, group.Order)
		}
		if i > 0 && group.Order <= p[i-1].Order {
			return fmt.Errorf("%w: group %d follows group %d", ErrInvalidPlan, group.Order, p[i-1].Order)
		}

		seen := make(map[int]struct{}, len(group.Channels))
		for _, spec := range group.Channels {
			if spec.Order != group.Order {
				return fmt.Errorf("%w: channel %d has order %d inside group %d",
					ErrInvalidPlan, spec.Channel, spec.Order, group.Order)
			}
			if spec.Duration < 0 {
				return fmt.Errorf("%w: channel %d has negative duration", ErrInvalidPlan, spec.Channel)
			}
			if _, dup := seen[spec.Channel]; dup {
				return fmt.Errorf("%w: channel %d appears twice in group %d",
					ErrDuplicateChannel, spec.Channel, group.Order)
			}
			seen[spec.Channel] = struct{}{}
		}
	}
	return nil
}
