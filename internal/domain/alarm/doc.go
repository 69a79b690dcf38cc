// Package alarm contains core domain types for the alarm console.
//
// It defines the Alarm entity, its Status and Category enums, and the fixed
// priority comparator that every stack's ordered index is maintained by.
package alarm
