package meshnet

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/libmapper/libmapper-sub001/wire"
)

// ProbeTimeout is the grace period a device waits for a higher-random
// collision on its candidate name before registering it, spec §4.9.
const ProbeTimeout = 250 * time.Millisecond

// ClaimOrdinal runs the probe/claim exchange spec §4.9 describes: try
// "<base>.1", "<base>.2", ... broadcasting `/name/probe <name>
// <random_u32>` and waiting ProbeTimeout for a collision — another
// device probing the same candidate name. Only a *higher* random wins a
// collision (spec §4.9: "another device claims the same n with a higher
// random"); this device backs off and retries the next ordinal only
// when it loses.
//
// Grounded on other_examples' burgrp-surp-go RegisterGroup.advertiseLoop
// / nextSequenceNumber pattern (JoinGroup broadcasts a join/advertise
// message and the group waits on replies before treating a name as
// claimed), re-purposed here from register advertisement to ordinal
// collision probing.
func ClaimOrdinal(bus *Bus, base string, randomID uint32) (string, int, error) {
	for ordinal := 1; ; ordinal++ {
		candidate := fmt.Sprintf("%s.%d", base, ordinal)
		lost, err := probeName(bus, candidate, randomID)
		if err != nil {
			return "", 0, err
		}
		if !lost {
			if err := bus.Broadcast(wire.Message{
				Address: wire.AddrNameRegistered,
				Args:    []wire.Arg{wire.String(candidate)},
			}); err != nil {
				return "", 0, err
			}
			return candidate, ordinal, nil
		}
	}
}

func probeName(bus *Bus, candidate string, randomID uint32) (bool, error) {
	if err := bus.Broadcast(wire.Message{
		Address: wire.AddrNameProbe,
		Args:    []wire.Arg{wire.String(candidate), wire.Int32(int32(randomID))},
	}); err != nil {
		return false, err
	}

	deadline := time.After(ProbeTimeout + time.Duration(rand.Intn(50))*time.Millisecond)
	for {
		select {
		case env := <-bus.Receive():
			if beatenBy(env.Message, candidate, randomID) {
				return true, nil
			}
		case <-deadline:
			return false, nil
		}
	}
}

// beatenBy reports whether msg is a probe for the same candidate name
// carrying a strictly higher random_u32 than ours.
func beatenBy(msg wire.Message, candidate string, randomID uint32) bool {
	if msg.Address != wire.AddrNameProbe {
		return false
	}
	if len(msg.Args) < 2 || msg.Args[0].Str != candidate {
		return false
	}
	other := uint32(msg.Args[1].I32)
	return other > randomID
}
