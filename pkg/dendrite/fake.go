package dendrite

import (
	"context"
	"fmt"
)

// Fake is an in-memory Client for tests: Responses is keyed by uid, Errors
// lets a test simulate a non-responding miner.
type Fake struct {
	Responses map[int]LogicSynapseResponse
	Errors    map[int]error
}

func (f *Fake) Query(_ context.Context, uid int) (LogicSynapseResponse, error) {
	if err, ok := f.Errors[uid]; ok {
		return LogicSynapseResponse{}, err
	}
	if resp, ok := f.Responses[uid]; ok {
		return resp, nil
	}
	return LogicSynapseResponse{}, fmt.Errorf("dendrite: no fake response registered for uid %d", uid)
}

func (f *Fake) SendResult(context.Context, int, ResultSynapseRequest) (ResultSynapseResponse, error) {
	return ResultSynapseResponse{Acknowledged: true}, nil
}
