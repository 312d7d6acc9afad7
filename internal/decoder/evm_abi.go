package decoder

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const escrowABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "client", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "arbitrator", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint16", "name": "protocolFeeBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint16", "name": "arbitratorFeeBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint64", "name": "createdAt", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "deadline", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "gracePeriod", "type": "uint64"},
      {"indexed": false, "internalType": "bytes32", "name": "taskHash", "type": "bytes32"},
      {"indexed": false, "internalType": "uint8", "name": "verificationType", "type": "uint8"}
    ],
    "name": "EscrowCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "acceptedAt", "type": "uint64"}
    ],
    "name": "EscrowAccepted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "provider", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "proofType", "type": "uint8"},
      {"indexed": false, "internalType": "bytes", "name": "proofData", "type": "bytes"},
      {"indexed": false, "internalType": "uint64", "name": "submittedAt", "type": "uint64"}
    ],
    "name": "EscrowProofSubmitted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountPaid", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "feeCollected", "type": "uint256"},
      {"indexed": false, "internalType": "uint64", "name": "completedAt", "type": "uint64"}
    ],
    "name": "EscrowCompleted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "client", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "cancelledAt", "type": "uint64"}
    ],
    "name": "EscrowCancelled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "refundAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint64", "name": "expiredAt", "type": "uint64"}
    ],
    "name": "EscrowExpired",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "raisedBy", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "raisedAt", "type": "uint64"}
    ],
    "name": "DisputeRaised",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "arbitrator", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "rulingType", "type": "uint8"},
      {"indexed": false, "internalType": "uint16", "name": "clientBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint16", "name": "providerBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint64", "name": "resolvedAt", "type": "uint64"}
    ],
    "name": "DisputeResolved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "admin", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "feeRecipient", "type": "address"},
      {"indexed": false, "internalType": "uint16", "name": "protocolFeeBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint16", "name": "arbitratorFeeBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint256", "name": "minEscrowAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "maxEscrowAmount", "type": "uint256"},
      {"indexed": false, "internalType": "bool", "name": "paused", "type": "bool"}
    ],
    "name": "ProtocolConfigUpdated",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "escrowId", "type": "uint256"},
      {
        "components": [
          {"internalType": "uint8", "name": "rulingType", "type": "uint8"},
          {"internalType": "uint16", "name": "clientBps", "type": "uint16"},
          {"internalType": "uint16", "name": "providerBps", "type": "uint16"}
        ],
        "internalType": "struct DisputeRuling",
        "name": "ruling",
        "type": "tuple"
      }
    ],
    "name": "resolveDispute",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	escrowABI     abi.ABI
	escrowABIOnce sync.Once
	escrowABIErr  error
)

// EscrowABI returns the parsed escrow contract ABI.
func EscrowABI() (abi.ABI, error) {
	escrowABIOnce.Do(func() {
		escrowABI, escrowABIErr = abi.JSON(strings.NewReader(escrowABIJSON))
	})
	return escrowABI, escrowABIErr
}
