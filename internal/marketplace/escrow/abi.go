package escrow

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// escrowABIJSON is the application ABI of the JobEscrow contract.
const escrowABIJSON = `[
	{"type":"function","name":"postJob","stateMutability":"payable","inputs":[
		{"name":"collateral","type":"uint256"},
		{"name":"deadline","type":"uint64"},
		{"name":"expectedToken","type":"bytes32"},
		{"name":"manualReview","type":"bool"}],
		"outputs":[{"name":"jobId","type":"uint256"}]},
	{"type":"function","name":"acceptJob","stateMutability":"payable","inputs":[
		{"name":"jobId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"submitResult","stateMutability":"nonpayable","inputs":[
		{"name":"jobId","type":"uint256"},
		{"name":"resultToken","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"approveJob","stateMutability":"nonpayable","inputs":[
		{"name":"jobId","type":"uint256"},
		{"name":"approved","type":"bool"}],"outputs":[]},
	{"type":"function","name":"cancelJob","stateMutability":"nonpayable","inputs":[
		{"name":"jobId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimTimeout","stateMutability":"nonpayable","inputs":[
		{"name":"jobId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"registerAgent","stateMutability":"nonpayable","inputs":[
		{"name":"agentId","type":"string"}],"outputs":[]},
	{"type":"function","name":"getJobStatus","stateMutability":"view","inputs":[
		{"name":"jobId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"event","name":"JobPosted","inputs":[
		{"name":"jobId","type":"uint256","indexed":true},
		{"name":"poster","type":"address","indexed":true},
		{"name":"payment","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"JobAccepted","inputs":[
		{"name":"jobId","type":"uint256","indexed":true},
		{"name":"executor","type":"address","indexed":true},
		{"name":"collateral","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"JobSettled","inputs":[
		{"name":"jobId","type":"uint256","indexed":true},
		{"name":"executor","type":"address","indexed":true},
		{"name":"verified","type":"bool","indexed":false},
		{"name":"payout","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"JobCancelled","inputs":[
		{"name":"jobId","type":"uint256","indexed":true}],"anonymous":false},
	{"type":"event","name":"AgentRegistered","inputs":[
		{"name":"wallet","type":"address","indexed":true},
		{"name":"agentId","type":"string","indexed":false}],"anonymous":false}
]`

// Event names emitted by the contract.
const (
	EventJobPosted       = "JobPosted"
	EventJobAccepted     = "JobAccepted"
	EventJobSettled      = "JobSettled"
	EventJobCancelled    = "JobCancelled"
	EventAgentRegistered = "AgentRegistered"
)

func escrowABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(escrowABIJSON))
}
