package common

// TempPrefix is the filename prefix for the temporary files written next to a destination
// before they are renamed into place. Files with this prefix that are still present after
// a run were left behind by an interrupted run.
const TempPrefix = ".media-clone-"
