package txencoding

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Variant names in declaration order; bincode tags an enum with its u32 index.
var transactionErrors = [...]string{
	"AccountInUse",
	"AccountLoadedTwice",
	"AccountNotFound",
	"ProgramAccountNotFound",
	"InsufficientFundsForFee",
	"InvalidAccountForFee",
	"AlreadyProcessed",
	"BlockhashNotFound",
	"InstructionError",
	"CallChainTooDeep",
	"MissingSignatureForFee",
	"InvalidAccountIndex",
	"SignatureFailure",
	"InvalidProgramForExecution",
	"SanitizeFailure",
	"ClusterMaintenance",
	"AccountBorrowOutstanding",
	"WouldExceedMaxBlockCostLimit",
	"UnsupportedVersion",
	"InvalidWritableAccount",
	"WouldExceedMaxAccountCostLimit",
	"WouldExceedAccountDataBlockLimit",
	"TooManyAccountLocks",
	"AddressLookupTableNotFound",
	"InvalidAddressLookupTableOwner",
	"InvalidAddressLookupTableData",
	"InvalidAddressLookupTableIndex",
	"InvalidRentPayingAccount",
	"WouldExceedMaxVoteCostLimit",
	"WouldExceedAccountDataTotalLimit",
	"DuplicateInstruction",
	"InsufficientFundsForRent",
	"MaxLoadedAccountsDataSizeExceeded",
	"InvalidLoadedAccountsDataSizeLimit",
	"ResanitizationNeeded",
	"ProgramExecutionTemporarilyRestricted",
	"UnbalancedTransaction",
	"ProgramCacheHitMaxLimit",
	"CommitCancelled",
}

const (
	txErrInstructionError                      = 8
	txErrDuplicateInstruction                  = 30
	txErrInsufficientFundsForRent              = 31
	txErrProgramExecutionTemporarilyRestricted = 35
)

var instructionErrors = [...]string{
	"GenericError",
	"InvalidArgument",
	"InvalidInstructionData",
	"InvalidAccountData",
	"AccountDataTooSmall",
	"InsufficientFunds",
	"IncorrectProgramId",
	"MissingRequiredSignature",
	"AccountAlreadyInitialized",
	"UninitializedAccount",
	"UnbalancedInstruction",
	"ModifiedProgramId",
	"ExternalAccountLamportSpend",
	"ReadonlyLamportChange",
	"ReadonlyDataModified",
	"DuplicateAccountIndex",
	"ExecutableModified",
	"RentEpochModified",
	"NotEnoughAccountKeys",
	"AccountDataSizeChanged",
	"AccountNotExecutable",
	"AccountBorrowFailed",
	"AccountBorrowOutstanding",
	"DuplicateAccountOutOfSync",
	"Custom",
	"InvalidError",
	"ExecutableDataModified",
	"ExecutableLamportChange",
	"ExecutableAccountNotRentExempt",
	"UnsupportedProgramId",
	"CallDepth",
	"MissingAccount",
	"ReentrancyNotAllowed",
	"MaxSeedLengthExceeded",
	"InvalidSeeds",
	"InvalidRealloc",
	"ComputationalBudgetExceeded",
	"PrivilegeEscalation",
	"ProgramEnvironmentSetupFailure",
	"ProgramFailedToComplete",
	"ProgramFailedToCompile",
	"Immutable",
	"IncorrectAuthority",
	"BorshIoError",
	"AccountNotRentExempt",
	"InvalidAccountOwner",
	"ArithmeticOverflow",
	"UnsupportedSysvar",
	"IllegalOwner",
	"MaxAccountsDataAllocationsExceeded",
	"MaxAccountsExceeded",
	"MaxInstructionTraceLengthExceeded",
	"BuiltinProgramsMustConsumeComputeUnits",
}

const (
	ixErrCustom       = 24
	ixErrBorshIoError = 43
)

// DecodeTransactionError renders a bincode-serialized TransactionError as the
// JSON text Solana RPC returns, e.g. "AccountInUse" or
// {"InstructionError":[0,{"Custom":1}]}.
func DecodeTransactionError(raw []byte) (string, error) {
	v, err := decodeTransactionError(raw)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTransactionError(raw []byte) (any, error) {
	r := &bincodeReader{b: raw}
	tag, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(tag) >= len(transactionErrors) {
		return nil, fmt.Errorf("%w: unknown variant %d", ErrMalformedError, tag)
	}
	name := transactionErrors[tag]

	var v any = name
	switch tag {
	case txErrInstructionError:
		index, err := r.u8()
		if err != nil {
			return nil, err
		}
		inner, err := decodeInstructionError(r)
		if err != nil {
			return nil, err
		}
		v = map[string]any{name: []any{index, inner}}
	case txErrDuplicateInstruction:
		index, err := r.u8()
		if err != nil {
			return nil, err
		}
		v = map[string]any{name: index}
	case txErrInsufficientFundsForRent, txErrProgramExecutionTemporarilyRestricted:
		index, err := r.u8()
		if err != nil {
			return nil, err
		}
		v = map[string]any{name: map[string]any{"account_index": index}}
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedError, r.remaining())
	}
	return v, nil
}

func decodeInstructionError(r *bincodeReader) (any, error) {
	tag, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(tag) >= len(instructionErrors) {
		return nil, fmt.Errorf("%w: unknown instruction error %d", ErrMalformedError, tag)
	}
	name := instructionErrors[tag]
	switch tag {
	case ixErrCustom:
		code, err := r.u32()
		if err != nil {
			return nil, err
		}
		return map[string]any{name: code}, nil
	case ixErrBorshIoError:
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		return map[string]any{name: s}, nil
	default:
		return name, nil
	}
}

// bincodeReader reads the little-endian fixed-width layout of bincode 1.x.
type bincodeReader struct {
	b   []byte
	off int
}

func (r *bincodeReader) remaining() int { return len(r.b) - r.off }

func (r *bincodeReader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d", ErrMalformedError, n, r.off)
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *bincodeReader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *bincodeReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *bincodeReader) str() (string, error) {
	b, err := r.take(8)
	if err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint64(b)
	if n > uint64(r.remaining()) {
		return "", fmt.Errorf("%w: string length %d exceeds input", ErrMalformedError, n)
	}
	s, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(s), nil
}
