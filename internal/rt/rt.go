// Package rt names the runtime entry points the generated code links
// against. The runtime itself ships separately; its contract is fixed, and
// lowering plus both backends refer to it only through these symbols.
package rt

// Allocation and collection. Every allocation can trigger a collection, so
// call sites are safepoints and carry stack maps.
const (
	SymAlloc = "quill_rt_alloc" // (size, traceMap) -> ptr
)

// Per-execution-context error slot. raise stores, `!` forwards, catch takes
// and clears.
const (
	SymErrSet   = "quill_rt_err_set"   // (errPtr)
	SymErrFlag  = "quill_rt_err_flag"  // () -> bool
	SymErrTake  = "quill_rt_err_take"  // () -> errPtr, clears the slot
	SymErrClear = "quill_rt_err_clear" // ()
)

// Contract violations terminate the process; they are never catchable.
const (
	SymContractFail = "quill_rt_contract_fail" // (kind, fnName, clauseIdx)
	SymNullFail     = "quill_rt_null_fail"     // ()
)

// Contract violation kinds, the first argument of SymContractFail.
const (
	ContractRequires  = 0
	ContractEnsures   = 1
	ContractInvariant = 2
)

// Tasks and channels.
const (
	SymTaskSpawn = "quill_rt_task_spawn" // (thunkPtr, argBlock) -> taskPtr, block copied before return
	SymTaskAwait = "quill_rt_task_await" // (taskPtr) -> result
	SymChanNew   = "quill_rt_chan_new"   // (elemSize, capacity) -> chanPtr
	SymChanSend  = "quill_rt_chan_send"  // (chanPtr, value)
	SymChanRecv  = "quill_rt_chan_recv"  // (chanPtr) -> value
)

// Strings are immutable heap values.
const (
	SymStrLit       = "quill_rt_str_lit"        // (bytesPtr, len) -> str
	SymStrConcat    = "quill_rt_str_concat"     // (a, b) -> str
	SymStrEq        = "quill_rt_str_eq"         // (a, b) -> bool
	SymStrCmp       = "quill_rt_str_cmp"        // (a, b) -> int
	SymStrIndex     = "quill_rt_str_index"      // (str, i) -> str, traps on range
	SymStrLen       = "quill_rt_str_len"        // (str) -> int
	SymStrFromInt   = "quill_rt_str_from_int"   // (i) -> str
	SymStrFromFloat = "quill_rt_str_from_float" // (f) -> str
	SymStrFromBool  = "quill_rt_str_from_bool"  // (b) -> str
	SymStrFromByte  = "quill_rt_str_from_byte"  // (b) -> str
)

// Arrays and maps.
const (
	SymArrNew = "quill_rt_arr_new" // (elemSize, len) -> arrPtr
	SymArrGet = "quill_rt_arr_get" // (arr, i) -> value, traps on range
	SymArrSet = "quill_rt_arr_set" // (arr, i, value), traps on range
	SymArrLen = "quill_rt_arr_len" // (arr) -> int
	SymMapNew = "quill_rt_map_new" // (keySize, valSize) -> mapPtr
	SymMapGet = "quill_rt_map_get" // (map, key) -> value, traps on missing key
	SymMapSet = "quill_rt_map_set" // (map, key, value)
)

// Trait dispatch tables are emitted per (class, trait) pair; construction
// stores the table pointer into the fat reference, calls load slots out of
// it directly. No runtime symbol is involved in dispatch itself.
