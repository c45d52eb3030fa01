package schema

// ProductVersion is stamped on every model at finalization
const ProductVersion = "1.3.0"
