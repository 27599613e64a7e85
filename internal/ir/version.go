package ir

// ContractVersion identifies the wire contract implemented by this module.
// Bumped whenever contracts.cue changes shape.
const ContractVersion = "ops/v1"
