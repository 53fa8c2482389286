// Package models defines the persisted domain records of Hisaab.
//
// # Records
//
//   - User: registered account, optionally carrying a monthly budget
//   - Group: named set of members; the creator is always a member
//   - Expense: an amount paid by one member and owed by several,
//     with the split details computed at write time
//
// Balances and settlements are not records. They are derived on every read
// by package calculator from a group's members and expenses.
//
// # Conventions
//
//  1. Relationships are ID strings, never pointers
//  2. Money is decimal.Decimal; floats appear only on the wire
//  3. Timestamps are Unix seconds
package models
